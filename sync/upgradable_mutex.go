// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync/atomic"
	"unsafe"
)

const (
	upgMutexSize = 4

	upgWriterFlag = uint32(1) << 31
	upgReaderMask = upgWriterFlag - 1
)

// upgMutex is a lightweight reader/writer lock state operating on a uint32
// memory cell. Bit 31 is the writer flag, the low bits count the readers.
// Only try-variants of the acquire operations are provided, waiting is the
// caller's job. The cell carries no owner bookkeeping, so the lock can be
// released by any process, not only by the one which acquired it.
type upgMutex struct {
	ptr *uint32
}

func newUpgMutex(ptr unsafe.Pointer) *upgMutex {
	return &upgMutex{ptr: (*uint32)(ptr)}
}

// init writes initial value into mutex's memory location.
func (um *upgMutex) init() {
	atomic.StoreUint32(um.ptr, 0)
}

// tryLock makes one attempt to take the cell exclusively. It fails if any
// reader or a writer is inside.
func (um *upgMutex) tryLock() bool {
	return atomic.CompareAndSwapUint32(um.ptr, 0, upgWriterFlag)
}

// unlock releases exclusive ownership.
func (um *upgMutex) unlock() {
	for {
		old := atomic.LoadUint32(um.ptr)
		if old&upgWriterFlag == 0 {
			panic("unlock of unlocked mutex")
		}
		if atomic.CompareAndSwapUint32(um.ptr, old, old & ^upgWriterFlag) {
			return
		}
	}
}

// tryRLock adds a reader to the cell. It fails only if the writer flag is
// set, CAS races with other readers are retried.
func (um *upgMutex) tryRLock() bool {
	for {
		old := atomic.LoadUint32(um.ptr)
		if old&upgWriterFlag != 0 {
			return false
		}
		if old&upgReaderMask == upgReaderMask {
			panic("reader count overflow")
		}
		if atomic.CompareAndSwapUint32(um.ptr, old, old+1) {
			return true
		}
	}
}

// rUnlock drops one reader from the cell.
func (um *upgMutex) rUnlock() {
	new := atomic.AddUint32(um.ptr, ^uint32(0))
	if new&upgReaderMask == upgReaderMask {
		panic("unlock of unlocked mutex")
	}
}

func (um *upgMutex) readers() int {
	return int(atomic.LoadUint32(um.ptr) & upgReaderMask)
}

func (um *upgMutex) writeLocked() bool {
	return atomic.LoadUint32(um.ptr)&upgWriterFlag != 0
}
