// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/klog/v2"

	"github.com/nxgtw/go-shmbus/internal/allocator"
)

const (
	// MaxSharedHolders is the capacity of a robust lock's shared-holder
	// table and the upper bound on the number of processes holding the
	// lock in shared mode at the same time.
	MaxSharedHolders = 64

	// RobustRWLockSize is the number of bytes of shared memory occupied by
	// one RobustRWLock. The layout is an ABI commitment: all cooperating
	// processes must use the same build.
	RobustRWLockSize = upgMutexSize + 4 + MaxSharedHolders*4

	// nonePid marks the absence of an exclusive holder. No real process
	// has pid 0.
	nonePid = int32(0)

	retryInterval = 2 * time.Millisecond
)

// RobustRWLock is a reader/writer lock, which lives entirely within a shared
// memory region and survives the death of any of its holders. It combines an
// interprocess reader/writer mutex with the pid of the current exclusive
// holder and a lock-free set of the pids of the current shared holders. When
// an acquisition stalls, the stored pids are checked against the OS process
// table, and holders which are no longer alive are forcibly evicted.
//
// The shared memory layout is:
//	offset 0: reader/writer lock word (4 bytes)
//	offset 4: exclusive holder pid (int32, 0 = none)
//	offset 8: shared holder pid table (MaxSharedHolders uint32 words)
//
// A RobustRWLock value itself holds only pointers into the mapped region and
// may be freely created in every participating process.
type RobustRWLock struct {
	inner  *upgMutex
	holder *int32
	shared *pidSet
}

// OpenRobustRWLockAt interprets RobustRWLockSize bytes at raw as an existing
// lock. The memory must have been initialized by NewRobustRWLockAt in some
// process.
func OpenRobustRWLockAt(raw unsafe.Pointer) *RobustRWLock {
	return &RobustRWLock{
		inner:  newUpgMutex(raw),
		holder: (*int32)(allocator.AdvancePointer(raw, upgMutexSize)),
		shared: newPidSet(allocator.AdvancePointer(raw, upgMutexSize+4), MaxSharedHolders),
	}
}

// NewRobustRWLockAt places a new unlocked lock at raw. Must be called exactly
// once per segment, by its creator, before any other process uses the lock.
func NewRobustRWLockAt(raw unsafe.Pointer) *RobustRWLock {
	result := OpenRobustRWLockAt(raw)
	result.init()
	return result
}

func (l *RobustRWLock) init() {
	l.inner.init()
	atomic.StoreInt32(l.holder, nonePid)
	l.shared.init()
}

// Lock acquires the lock exclusively, waiting for the holders to leave or
// die. It never fails, the wait is unbounded.
func (l *RobustRWLock) Lock() {
	l.lock(backoff.NewConstantBackOff(retryInterval))
}

// LockTimeout tries to acquire the lock exclusively, waiting for not more,
// than timeout. It returns false, if the lock is still held by live
// processes after the timeout elapses.
func (l *RobustRWLock) LockTimeout(timeout time.Duration) bool {
	return l.lock(acquireBackOff(timeout))
}

func (l *RobustRWLock) lock(b backoff.BackOff) bool {
	ourPid := int32(os.Getpid())
	for !l.inner.tryLock() {
		if holder := atomic.LoadInt32(l.holder); holder != nonePid {
			if !procAlive(holder) {
				// The writer died inside its critical section. Its
				// bookkeeping in the lock word is unrecoverable, so no
				// unlock is issued. Whoever wins the pid CAS simply
				// assumes ownership of the dead writer's lock.
				if atomic.CompareAndSwapInt32(l.holder, holder, ourPid) {
					klog.V(4).Infof("robust lock: absorbed exclusive lock of dead process %d", holder)
					return true
				}
			}
			// a healthy writer is ahead of us, wait for it.
		} else {
			// no exclusive holder, so readers are blocking us. evict
			// the dead ones, live readers are waited out.
			l.pruneShared()
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			return false
		}
		time.Sleep(d)
	}
	atomic.StoreInt32(l.holder, ourPid)
	return true
}

// Unlock releases exclusive ownership. The holder pid is cleared before the
// lock word is released, so a process observing a failed tryLock reads
// either a valid holder pid or none.
func (l *RobustRWLock) Unlock() {
	atomic.StoreInt32(l.holder, nonePid)
	l.inner.unlock()
}

// RLock acquires the lock in shared mode. It never fails, the wait is
// unbounded.
func (l *RobustRWLock) RLock() {
	l.rlock(backoff.NewConstantBackOff(retryInterval))
}

// RLockTimeout tries to acquire the lock in shared mode, waiting for not
// more, than timeout.
func (l *RobustRWLock) RLockTimeout(timeout time.Duration) bool {
	return l.rlock(acquireBackOff(timeout))
}

func (l *RobustRWLock) rlock(b backoff.BackOff) bool {
	for !l.inner.tryRLock() {
		holder := atomic.LoadInt32(l.holder)
		if holder != nonePid && !procAlive(holder) {
			// the exclusive holder died. clear the pid and release the
			// lock word on its behalf, then retry. The CAS keeps
			// concurrent readers from releasing twice.
			if atomic.CompareAndSwapInt32(l.holder, holder, nonePid) {
				l.inner.unlock()
				klog.V(4).Infof("robust lock: released exclusive lock of dead process %d", holder)
			}
			continue
		}
		// Either a healthy writer is inside, or no holder is recorded at
		// all. The latter is a transient window: Unlock has cleared the pid
		// but not yet released the lock word, or a writer's tryLock has
		// succeeded but its pid is not stored yet. Wait in both cases.
		d := b.NextBackOff()
		if d == backoff.Stop {
			return false
		}
		time.Sleep(d)
	}
	if !l.shared.insert(uint32(os.Getpid())) {
		l.inner.rUnlock()
		panic("shared holder table is full")
	}
	return true
}

// RUnlock releases shared ownership. If our pid has already been evicted by
// a pruning writer, the matching release of the lock word has been issued on
// our behalf, and this call is a no-op.
func (l *RobustRWLock) RUnlock() {
	if l.shared.remove(uint32(os.Getpid())) {
		l.inner.rUnlock()
	}
}

// pruneShared scans the shared holder table and evicts entries whose process
// is dead. The remove-gated release guarantees each dead reader contributes
// exactly one reader decrement, no matter how many pruners run concurrently.
func (l *RobustRWLock) pruneShared() {
	for _, pid := range l.shared.snapshot() {
		if procAlive(int32(pid)) {
			continue
		}
		if l.shared.remove(pid) {
			l.inner.rUnlock()
			klog.V(4).Infof("robust lock: pruned dead shared holder %d", pid)
		}
	}
}

// RLocker returns a Locker interface that implements
// the Lock and Unlock methods by calling l.RLock and l.RUnlock.
func (l *RobustRWLock) RLocker() sync.Locker {
	return (*rlocker)(l)
}

type rlocker RobustRWLock

func (r *rlocker) Lock()   { (*RobustRWLock)(r).RLock() }
func (r *rlocker) Unlock() { (*RobustRWLock)(r).RUnlock() }

// acquireBackOff returns the retry policy for a bounded acquisition.
func acquireBackOff(timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInterval
	b.MaxInterval = 8 * retryInterval
	b.MaxElapsedTime = timeout
	b.Reset()
	return b
}
