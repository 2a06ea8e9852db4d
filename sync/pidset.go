// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync/atomic"
	"unsafe"

	"github.com/nxgtw/go-shmbus/internal/allocator"
)

// pidSet is a fixed-capacity set of process ids, open-addressed with linear
// probing. The slot array lives in shared memory, one atomic 32-bit word per
// slot. 0 marks an empty slot, so the set cannot hold pid 0; no real process
// has that id on the targeted systems. All slot operations are plain atomics,
// ordering with respect to the lock protecting the data is supplied by the
// lock itself.
//
// The slice header and the hash function are per-process, only the slots are
// shared.
type pidSet struct {
	slots []uint32
	hash  func(uint32) uint32
}

// newPidSet interprets capacity*4 bytes at raw as a pid slot array.
// capacity must be a power of two.
func newPidSet(raw unsafe.Pointer, capacity int) *pidSet {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("pid set capacity must be a power of two")
	}
	return &pidSet{
		slots: allocator.Uint32SliceFromUnsafePointer(raw, capacity, capacity),
		hash:  mix32,
	}
}

// init zeroes the slot array. Must be called exactly once, by the creator of
// the shared segment, before any other process touches the set.
func (s *pidSet) init() {
	for i := range s.slots {
		atomic.StoreUint32(&s.slots[i], 0)
	}
}

// insert adds pid to the set. The probe stops at the first slot holding pid
// or at the first free slot, so inserting an already present pid is a no-op,
// unless a slot in front of it on its probe path has been freed by remove:
// then the pid is stored there a second time.
// It returns false, if no free slot was found after a full pass over the
// table. pid must not be 0.
func (s *pidSet) insert(pid uint32) bool {
	if pid == 0 {
		panic("pid 0 cannot be stored")
	}
	mask := uint32(len(s.slots) - 1)
	idx := s.hash(pid) & mask
	for probes := 0; probes < len(s.slots); probes++ {
		slot := &s.slots[idx&mask]
		probed := atomic.LoadUint32(slot)
		if probed == pid {
			return true
		}
		if probed == 0 {
			if atomic.CompareAndSwapUint32(slot, 0, pid) {
				return true
			}
			// lost the slot to a concurrent inserter. if it stored the
			// same pid, we are done, otherwise keep probing.
			if atomic.LoadUint32(slot) == pid {
				return true
			}
		}
		idx++
	}
	return false
}

// remove deletes pid from the set. It returns true only if this call
// performed the present-to-absent transition. A false return means the pid
// was not in the set, or a concurrent remover won the race for it.
func (s *pidSet) remove(pid uint32) bool {
	mask := uint32(len(s.slots) - 1)
	idx := s.hash(pid) & mask
	for probes := 0; probes < len(s.slots); probes++ {
		slot := &s.slots[idx&mask]
		if atomic.LoadUint32(slot) == pid {
			if atomic.CompareAndSwapUint32(slot, pid, 0) {
				return true
			}
			// another remover got there first. the pid could have been
			// re-inserted into a different slot meanwhile, so keep probing
			// instead of giving up.
		}
		idx++
	}
	return false
}

// snapshot returns the pids of all non-empty slots. The view is weakly
// consistent: entries inserted or removed concurrently may or may not appear.
func (s *pidSet) snapshot() []uint32 {
	result := make([]uint32, 0, len(s.slots))
	for i := range s.slots {
		if pid := atomic.LoadUint32(&s.slots[i]); pid != 0 {
			result = append(result, pid)
		}
	}
	return result
}

// mix32 is the 32-bit murmur3 finalizer.
func mix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
