// Copyright 2015 Aleksandr Demakin. All rights reserved.

//go:build darwin || freebsd || linux

package mmf

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type memoryRegion struct {
	data []byte
}

func newMemoryRegion(fd uintptr, mode, size int) (*memoryRegion, error) {
	prot := unix.PROT_READ
	switch mode {
	case MEM_READ_ONLY:
	case MEM_READWRITE:
		prot |= unix.PROT_WRITE
	default:
		return nil, errors.Errorf("invalid memory region mode %d", mode)
	}
	data, err := unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap failed")
	}
	return &memoryRegion{data: data}, nil
}

func (region *memoryRegion) Close() error {
	if region.data == nil {
		return nil
	}
	err := unix.Munmap(region.data)
	region.data = nil
	return errors.Wrap(err, "munmap failed")
}

func (region *memoryRegion) Data() []byte {
	return region.data
}

func (region *memoryRegion) Flush(async bool) error {
	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}
	if err := unix.Msync(region.data, flags); err != nil {
		return errors.Wrap(err, "msync failed")
	}
	return nil
}

func (region *memoryRegion) Size() int {
	return len(region.data)
}
