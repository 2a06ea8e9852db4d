// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build darwin || freebsd

package sync

import (
	"golang.org/x/sys/unix"
)

// procAlive reports whether pid names a currently existing process.
// There is no procfs here, so the process is probed with a null signal.
// EPERM means the process exists but belongs to another user.
func procAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(int(pid), 0) != unix.ESRCH
}
