// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package mmf maps shared memory objects into the process address space.
package mmf

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/nxgtw/go-shmbus/internal/allocator"
)

// memory region mapping modes.
const (
	// MEM_READ_ONLY maps the memory for reading only.
	MEM_READ_ONLY = iota
	// MEM_READWRITE maps the memory for reading and writing.
	MEM_READWRITE
)

// Mappable is a named object of a known size, which can return a handle,
// that can be used as a file descriptor for mmap.
type Mappable interface {
	Fd() uintptr
	Size() int64
	Name() string
}

// MemoryRegion is a mmapped area of a memory object.
// Warning. The internal object has a finalizer set,
// so the region will be unmapped during the gc.
// Thus, you should be careful getting internal data.
// For example, the following code may crash:
// 	func f() {
// 		region := NewMemoryRegion(...)
// 		return g(region.Data())
// 	}
// region may be gc'ed while its data is used by g().
// To avoid this, you can use UseMemoryRegion().
type MemoryRegion struct {
	*memoryRegion
}

// NewMemoryRegion maps an object into memory, starting at its beginning.
//	object - an object to mmap.
//	mode - access mode. see MEM_* constants.
//	size - mapping size. pass 0 to map the entire object.
func NewMemoryRegion(object Mappable, mode int, size int) (*MemoryRegion, error) {
	objSize := object.Size()
	if size == 0 {
		if objSize == 0 {
			return nil, errors.Errorf("object %q is empty", object.Name())
		}
		size = int(objSize)
	} else if int64(size) > objSize {
		// mmap would happily map more bytes, than the object holds,
		// and accesses past the end would fault later.
		return nil, errors.Errorf("mapping of %d bytes exceeds the object size %d", size, objSize)
	}
	impl, err := newMemoryRegion(object.Fd(), mode, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map object %q", object.Name())
	}
	result := &MemoryRegion{impl}
	runtime.SetFinalizer(impl, func(region *memoryRegion) {
		region.Close()
	})
	return result, nil
}

// Close unmaps the region so that it cannot be longer used.
func (region *MemoryRegion) Close() error {
	return region.memoryRegion.Close()
}

// Data returns region's mapped data.
func (region *MemoryRegion) Data() []byte {
	return region.memoryRegion.Data()
}

// Flush syncs mapped content with the file data.
func (region *MemoryRegion) Flush(async bool) error {
	return region.memoryRegion.Flush(async)
}

// Size returns mapping size.
func (region *MemoryRegion) Size() int {
	return region.memoryRegion.Size()
}

// UseMemoryRegion ensures, that the region object is still alive at the moment of the call.
func UseMemoryRegion(region *MemoryRegion) {
	allocator.Use(unsafe.Pointer(region))
}
