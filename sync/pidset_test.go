// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nxgtw/go-shmbus/internal/allocator"
)

func newTestPidSet(capacity int) *pidSet {
	backing := make([]byte, capacity*4)
	return newPidSet(allocator.ByteSliceData(backing), capacity)
}

func TestPidSetBasic(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	a.Empty(s.snapshot())
	a.True(s.insert(100))
	a.True(s.insert(200))
	a.ElementsMatch([]uint32{100, 200}, s.snapshot())
	a.True(s.remove(100))
	a.ElementsMatch([]uint32{200}, s.snapshot())
	a.True(s.remove(200))
	a.Empty(s.snapshot())
}

func TestPidSetInsertIdempotent(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	a.True(s.insert(42))
	a.True(s.insert(42))
	a.ElementsMatch([]uint32{42}, s.snapshot())
	a.True(s.remove(42))
	a.Empty(s.snapshot())
}

func TestPidSetRemoveAbsent(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	a.False(s.remove(42))
	a.True(s.insert(42))
	a.True(s.remove(42))
	a.False(s.remove(42))
}

func TestPidSetCollisions(t *testing.T) {
	a := assert.New(t)
	// a small table forces probe chains to wrap around.
	const capacity = 8
	s := newTestPidSet(capacity)
	s.init()
	pids := []uint32{1, 9, 17, 25, 33, 41, 49, 57}
	for _, pid := range pids {
		a.True(s.insert(pid))
	}
	a.ElementsMatch(pids, s.snapshot())
	// the table is full now.
	a.False(s.insert(1000))
	// present pids are still found despite the full table.
	for _, pid := range pids {
		a.True(s.insert(pid))
	}
	a.True(s.remove(17))
	a.True(s.insert(1000))
	a.ElementsMatch([]uint32{1, 9, 25, 33, 41, 49, 57, 1000}, s.snapshot())
	for _, pid := range []uint32{1, 9, 25, 33, 41, 49, 57, 1000} {
		a.True(s.remove(pid))
	}
	a.Empty(s.snapshot())
}

func TestPidSetZeroPidPanics(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	a.Panics(func() { s.insert(0) })
}

func TestPidSetBadCapacityPanics(t *testing.T) {
	a := assert.New(t)
	backing := make([]byte, 64)
	a.Panics(func() { newPidSet(allocator.ByteSliceData(backing), 12) })
	a.Panics(func() { newPidSet(allocator.ByteSliceData(backing), 0) })
}

func TestPidSetConcurrent(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	const jobs = 8
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		pid := uint32(i + 1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !s.insert(pid) {
					return
				}
				if !s.remove(pid) {
					return
				}
			}
		}()
	}
	wg.Wait()
	a.Empty(s.snapshot())
}

func TestPidSetRemoveIsExclusive(t *testing.T) {
	a := assert.New(t)
	s := newTestPidSet(MaxSharedHolders)
	s.init()
	const pid = 12345
	a.True(s.insert(pid))
	const removers = 8
	results := make(chan bool, removers)
	var start, wg sync.WaitGroup
	start.Add(1)
	wg.Add(removers)
	for i := 0; i < removers; i++ {
		go func() {
			defer wg.Done()
			start.Wait()
			results <- s.remove(pid)
		}()
	}
	start.Done()
	wg.Wait()
	close(results)
	winners := 0
	for won := range results {
		if won {
			winners++
		}
	}
	a.Equal(1, winners)
	a.Empty(s.snapshot())
}
