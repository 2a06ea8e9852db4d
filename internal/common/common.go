// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"

	"github.com/pkg/errors"
)

// OpenOrCreate performs open/create file operation according to the given flag.
// The creator callback receives true, if it must create the object, and false,
// if it must open an existing one. The first return value reports whether the
// object was created by this call.
//	flag - combination of flags from the 'os' package:
//		0 - open existing.
//		os.O_CREATE - open existing or create new.
//		os.O_CREATE|os.O_EXCL - create new, fail if it already exists.
func OpenOrCreate(creator func(create bool) error, flag int) (bool, error) {
	switch flag & (os.O_CREATE | os.O_EXCL) {
	case 0:
		return false, creator(false)
	case os.O_CREATE | os.O_EXCL:
		if err := creator(true); err != nil {
			return false, err
		}
		return true, nil
	case os.O_CREATE:
		// there is a race between open and create, when two processes
		// use O_CREATE without O_EXCL. make several attempts, so that
		// one of them wins.
		const attempts = 16
		var err error
		for attempt := 0; attempt < attempts; attempt++ {
			if err = creator(true); !os.IsExist(err) {
				return true, err
			}
			if err = creator(false); !os.IsNotExist(err) {
				return false, err
			}
		}
		return false, err
	default:
		return false, errors.Errorf("invalid open flag %#x", flag)
	}
}

// FlagsForOpen strips flags, which are not related to open/create logic.
func FlagsForOpen(flag int) int {
	return flag & (os.O_CREATE | os.O_EXCL)
}

// FlagsForAccess checks that the flag contains valid open bits only.
func FlagsForAccess(flag int) error {
	if flag & ^(os.O_CREATE|os.O_EXCL) != 0 {
		return errors.Errorf("unsupported open flag %#x", flag)
	}
	return nil
}

type timeoutError interface {
	Timeout() bool
}

// IsTimeoutErr reports whether the given error was caused by a timeout.
func IsTimeoutErr(err error) bool {
	if to, ok := errors.Cause(err).(timeoutError); ok {
		return to.Timeout()
	}
	return false
}
