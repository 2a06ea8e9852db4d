// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcAliveSelf(t *testing.T) {
	a := assert.New(t)
	a.True(procAlive(int32(os.Getpid())))
}

func TestProcAliveInvalidPid(t *testing.T) {
	a := assert.New(t)
	a.False(procAlive(0))
	a.False(procAlive(-1))
}

func TestProcAliveExitedProcess(t *testing.T) {
	a := assert.New(t)
	cmd := exec.Command("sleep", "60")
	a.NoError(cmd.Start())
	pid := int32(cmd.Process.Pid)
	a.True(procAlive(pid))
	a.NoError(cmd.Process.Kill())
	cmd.Wait()
	a.False(procAlive(pid))
}
