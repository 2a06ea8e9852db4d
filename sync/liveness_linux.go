// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// procAlive reports whether pid names a currently existing process.
// The primary source is the per-process directory under /proc. If /proc
// cannot be consulted, the process is probed with a null signal. The
// predicate never blocks and errs toward true: false is returned only when
// the OS confirms the pid is gone.
//
// A pid recycled by the OS after the original holder died will masquerade
// as alive. The callers accept this, recovery is delayed by at most one
// acquisition cycle.
func procAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.Stat("/proc/" + strconv.Itoa(int(pid)))
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	return unix.Kill(int(pid), 0) != unix.ESRCH
}
