// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nxgtw/go-shmbus/internal/allocator"
)

func newTestUpgMutex() *upgMutex {
	backing := make([]byte, upgMutexSize)
	um := newUpgMutex(allocator.ByteSliceData(backing))
	um.init()
	return um
}

func TestUpgMutexLock(t *testing.T) {
	a := assert.New(t)
	um := newTestUpgMutex()
	a.True(um.tryLock())
	a.True(um.writeLocked())
	a.False(um.tryLock())
	a.False(um.tryRLock())
	um.unlock()
	a.False(um.writeLocked())
	a.True(um.tryLock())
	um.unlock()
}

func TestUpgMutexRLock(t *testing.T) {
	a := assert.New(t)
	um := newTestUpgMutex()
	a.True(um.tryRLock())
	a.True(um.tryRLock())
	a.Equal(2, um.readers())
	a.False(um.tryLock())
	um.rUnlock()
	a.False(um.tryLock())
	um.rUnlock()
	a.Equal(0, um.readers())
	a.True(um.tryLock())
	um.unlock()
}

func TestUpgMutexForeignRelease(t *testing.T) {
	a := assert.New(t)
	// the cell keeps no owner, any party can release it.
	um := newTestUpgMutex()
	a.True(um.tryLock())
	other := &upgMutex{ptr: um.ptr}
	other.unlock()
	a.True(um.tryLock())
	um.unlock()
}

func TestUpgMutexMisusePanics(t *testing.T) {
	a := assert.New(t)
	um := newTestUpgMutex()
	a.Panics(func() { um.unlock() })
	a.Panics(func() { um.rUnlock() })
}
