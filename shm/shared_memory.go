// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"os"
	"runtime"

	"github.com/pkg/errors"

	"github.com/nxgtw/go-shmbus/internal/common"
)

// SharedMemoryObject is an interface, which must be satisfied
// by any implemetation of an object used for mapping into memory.
type SharedMemoryObject interface {
	Name() string
	Size() int64
	Truncate(size int64) error
	Close() error
	Destroy() error
	Fd() uintptr
}

// MemoryObject represents an object which can be used to
// map shared memory regions into the process' address space.
type MemoryObject struct {
	*memoryObject
}

// NewMemoryObject creates a new shared memory object.
//	name - a name of the object. should not contain '/' and must be shorter, than 255 symbols.
//	flag - flag is a combination of open flags from 'os' package.
//	perm - object's permission bits.
func NewMemoryObject(name string, flag int, perm os.FileMode) (*MemoryObject, error) {
	impl, err := newMemoryObject(name, flag, perm)
	if err != nil {
		return nil, err
	}
	result := &MemoryObject{impl}
	runtime.SetFinalizer(impl, func(memObject *memoryObject) {
		memObject.Close()
	})
	return result, nil
}

// NewMemoryObjectSize opens or creates a shared memory object with the given name.
// If the object was created, it is truncated to 'size'.
// Otherwise, checks, that the existing object is at least 'size' bytes long.
// Returns an object, true, if it was created, and an error.
func NewMemoryObjectSize(name string, flag int, perm os.FileMode, size int64) (*MemoryObject, bool, error) {
	var obj *MemoryObject
	creator := func(create bool) error {
		var err error
		creatorFlag := os.O_RDWR
		if create {
			creatorFlag |= os.O_CREATE | os.O_EXCL
		}
		obj, err = NewMemoryObject(name, creatorFlag, perm)
		return err
	}
	created, err := common.OpenOrCreate(creator, common.FlagsForOpen(flag))
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to open/create shm object")
	}
	if created {
		if err = obj.Truncate(size); err != nil {
			obj.Destroy()
			return nil, false, errors.Wrap(err, "failed to truncate shm object")
		}
	} else if obj.Size() < size {
		obj.Close()
		return nil, false, errors.Errorf("existing object is smaller, than needed (%d < %d)", obj.Size(), size)
	}
	return obj, created, nil
}

// DestroyMemoryObject permanently removes given memory object.
func DestroyMemoryObject(name string) error {
	return destroyMemoryObject(name)
}
