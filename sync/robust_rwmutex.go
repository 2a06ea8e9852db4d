// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nxgtw/go-shmbus/internal/allocator"
	"github.com/nxgtw/go-shmbus/mmf"
	"github.com/nxgtw/go-shmbus/shm"
)

// all implementations must satisfy IPCLocker interface.
var (
	_ TimedIPCLocker = (*RobustRWMutex)(nil)
)

// RobustRWMutex is a named crash-resilient reader/writer mutex. It keeps its
// entire state in a shared memory object, so it can be opened by any process
// knowing the name, and it recovers locks held by processes which died without
// unlocking.
type RobustRWMutex struct {
	lock   *RobustRWLock
	region *mmf.MemoryRegion
	name   string
}

// NewRobustRWMutex creates a new robust rwmutex.
//	name - object name.
//	flag - flag is a combination of open flags from 'os' package.
//	perm - object's permission bits.
func NewRobustRWMutex(name string, flag int, perm os.FileMode) (*RobustRWMutex, error) {
	if err := ensureOpenFlags(flag); err != nil {
		return nil, err
	}
	name = robustName(name)
	obj, created, err := shm.NewMemoryObjectSize(name, flag, perm, RobustRWLockSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open lock object")
	}
	defer obj.Close()
	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, RobustRWLockSize)
	if err != nil {
		if created {
			obj.Destroy()
		}
		return nil, errors.Wrap(err, "failed to map lock object")
	}
	var lock *RobustRWLock
	if created {
		lock = NewRobustRWLockAt(allocator.ByteSliceData(region.Data()))
	} else {
		lock = OpenRobustRWLockAt(allocator.ByteSliceData(region.Data()))
	}
	return &RobustRWMutex{lock: lock, region: region, name: name}, nil
}

// Lock locks the mutex exclusively. If a holder died without unlocking, its
// lock is recovered.
func (m *RobustRWMutex) Lock() {
	m.lock.Lock()
}

// LockTimeout tries to lock the mutex exclusively, waiting for not more, than timeout.
func (m *RobustRWMutex) LockTimeout(timeout time.Duration) bool {
	return m.lock.LockTimeout(timeout)
}

// Unlock releases exclusive ownership. It panics, if the mutex is not locked.
func (m *RobustRWMutex) Unlock() {
	m.lock.Unlock()
}

// RLock locks the mutex in shared mode.
func (m *RobustRWMutex) RLock() {
	m.lock.RLock()
}

// RLockTimeout tries to lock the mutex in shared mode, waiting for not more, than timeout.
func (m *RobustRWMutex) RLockTimeout(timeout time.Duration) bool {
	return m.lock.RLockTimeout(timeout)
}

// RUnlock releases shared ownership.
func (m *RobustRWMutex) RUnlock() {
	m.lock.RUnlock()
}

// RLocker returns a Locker interface that implements
// the Lock and Unlock methods by calling RLock and RUnlock.
func (m *RobustRWMutex) RLocker() sync.Locker {
	return m.lock.RLocker()
}

// Close indicates, that the object is no longer in use,
// and that the underlying resources can be freed.
func (m *RobustRWMutex) Close() error {
	return m.region.Close()
}

// Destroy removes the mutex object.
func (m *RobustRWMutex) Destroy() error {
	if err := m.Close(); err != nil {
		return errors.Wrap(err, "failed to close robust rwmutex")
	}
	m.region = nil
	err := shm.DestroyMemoryObject(m.name)
	m.name = ""
	if err != nil {
		return errors.Wrap(err, "failed to destroy shm object")
	}
	return nil
}

// DestroyRobustRWMutex removes a mutex object with the given name.
func DestroyRobustRWMutex(name string) error {
	return shm.DestroyMemoryObject(robustName(name))
}

func robustName(name string) string {
	return "shmbus.robust." + name
}
