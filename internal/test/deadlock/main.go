// Copyright 2016 Aleksandr Demakin. All rights reserved.

// A helper program for cross-process lock tests. It acquires a robust
// rwmutex in the requested mode and then either works with a shared counter
// cell, or kills itself without unlocking to simulate a crashed holder.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nxgtw/go-shmbus/internal/allocator"
	"github.com/nxgtw/go-shmbus/mmf"
	"github.com/nxgtw/go-shmbus/shm"
	"github.com/nxgtw/go-shmbus/sync"
)

var (
	objName  = flag.String("object", "", "lock object name")
	mode     = flag.String("mode", "x", "lock mode - x (exclusive) | s (shared)")
	dataName = flag.String("data", "", "counter cell object name")
	count    = flag.Int("n", 1, "number of operations")
)

const usage = `  test program for robust lock primitives.
available commands:
  die
    acquire the lock in the given mode and terminate via SIGKILL
    without unlocking.
  inc
    perform n increments of the counter cell, each under the
    exclusive lock.
  read
    perform n shared acquisitions, checking that the counter cell
    does not change while the lock is held.
`

func openCell() (*mmf.MemoryRegion, *uint64, error) {
	obj, err := shm.NewMemoryObject(*dataName, os.O_RDWR, 0666)
	if err != nil {
		return nil, nil, err
	}
	defer obj.Close()
	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, 8)
	if err != nil {
		return nil, nil, err
	}
	return region, (*uint64)(allocator.ByteSliceData(region.Data())), nil
}

func die() error {
	m, err := sync.NewRobustRWMutex(*objName, 0, 0666)
	if err != nil {
		return err
	}
	if *mode == "x" {
		m.Lock()
	} else {
		m.RLock()
	}
	syscall.Kill(os.Getpid(), syscall.SIGKILL)
	select {}
}

func inc() error {
	m, err := sync.NewRobustRWMutex(*objName, 0, 0666)
	if err != nil {
		return err
	}
	defer m.Close()
	region, cell, err := openCell()
	if err != nil {
		return err
	}
	defer region.Close()
	for i := 0; i < *count; i++ {
		m.Lock()
		value := atomic.LoadUint64(cell)
		time.Sleep(time.Microsecond)
		atomic.StoreUint64(cell, value+1)
		m.Unlock()
	}
	return nil
}

func read() error {
	m, err := sync.NewRobustRWMutex(*objName, 0, 0666)
	if err != nil {
		return err
	}
	defer m.Close()
	region, cell, err := openCell()
	if err != nil {
		return err
	}
	defer region.Close()
	for i := 0; i < *count; i++ {
		m.RLock()
		before := atomic.LoadUint64(cell)
		time.Sleep(time.Microsecond)
		after := atomic.LoadUint64(cell)
		m.RUnlock()
		if before != after {
			return fmt.Errorf("counter changed under a shared lock (%d != %d)", before, after)
		}
	}
	return nil
}

func runCommand(command string) error {
	switch command {
	case "die":
		return die()
	case "inc":
		return inc()
	case "read":
		return read()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Print(usage)
		os.Exit(1)
	}
	if err := runCommand(flag.Arg(0)); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}
