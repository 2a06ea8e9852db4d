// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package shmbus_testing launches helper programs used by cross-process tests.
package shmbus_testing

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// TestAppResult is a result of a 'go run' program launch.
type TestAppResult struct {
	Output string
	Err    error
}

func startTestApp(args []string, killChan <-chan bool) (*exec.Cmd, *bytes.Buffer, error) {
	args = append([]string{"run"}, args...)
	cmd := exec.Command("go", args...)
	buff := bytes.NewBuffer(nil)
	cmd.Stderr = buff
	cmd.Stdout = buff
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	if killChan != nil {
		go func() {
			if kill, ok := <-killChan; kill && ok {
				cmd.Process.Kill()
			}
		}()
	}
	fmt.Printf("started new process [%d]\n", cmd.Process.Pid)
	return cmd, buff, nil
}

func waitForCommand(cmd *exec.Cmd, buff *bytes.Buffer) (result TestAppResult) {
	if result.Err = cmd.Wait(); result.Err != nil {
		if exiterr, ok := result.Err.(*exec.ExitError); ok {
			if status, ok := exiterr.Sys().(syscall.WaitStatus); ok {
				result.Err = fmt.Errorf("%v, status code = %d", result.Err, status)
			}
		}
	} else {
		if !cmd.ProcessState.Success() {
			result.Err = fmt.Errorf("process has exited with an error")
		}
	}
	result.Output = buff.String()
	return
}

// RunTestApp starts a go program via 'go run'.
// To kill the process, send to killChan.
func RunTestApp(args []string, killChan <-chan bool) (result TestAppResult) {
	if cmd, buff, err := startTestApp(args, killChan); err == nil {
		result = waitForCommand(cmd, buff)
	} else {
		result.Err = err
	}
	return
}

// RunTestAppAsync starts a go program via 'go run' and returns immediately.
// To kill the process, send to killChan.
// To wait for the program to finish, receive on TestAppResult chan.
func RunTestAppAsync(args []string, killChan <-chan bool) <-chan TestAppResult {
	ch := make(chan TestAppResult, 1)
	if cmd, buff, err := startTestApp(args, killChan); err != nil {
		ch <- TestAppResult{Err: err}
	} else {
		go func() {
			ch <- waitForCommand(cmd, buff)
		}()
	}
	return ch
}

// WaitForFunc calls f asynchronously leaving it some time to finish.
// It returns true, if f completed.
func WaitForFunc(f func(), d time.Duration) bool {
	ch := make(chan bool, 1)
	go func() {
		f()
		ch <- true
	}()
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

// WaitForAppResultChan waits for a value from ch with a timeout.
func WaitForAppResultChan(ch <-chan TestAppResult, d time.Duration) (TestAppResult, bool) {
	select {
	case value := <-ch:
		return value, true
	case <-time.After(d):
		return TestAppResult{}, false
	}
}

// LocatePackageFiles returns a slice of all the buildable source files in the given directory.
func LocatePackageFiles(path string) ([]string, error) {
	args := []string{"list", "-f", "{{.GoFiles}}", path}
	cmd := exec.Command("go", args...)
	buff := bytes.NewBuffer(nil)
	cmd.Stderr = buff
	cmd.Stdout = buff
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	result := waitForCommand(cmd, buff)
	if result.Err != nil {
		return nil, result.Err
	}
	return buildFilesFromOutput(result.Output), nil
}

func buildFilesFromOutput(output string) []string {
	output = strings.TrimSpace(output)
	output = strings.Trim(output, "[]")
	parts := strings.Split(output, " ")
	for i := 0; i < len(parts); i++ {
		if !strings.HasSuffix(parts[i], ".go") {
			for j := i + 1; j < len(parts); j++ {
				needBrake := strings.HasSuffix(parts[j], ".go")
				parts[i] += parts[j]
				parts[j] = ""
				if needBrake {
					break
				}
			}
		}
	}
	for i := len(parts) - 1; i >= 0 && len(parts[i]) == 0; i-- {
		parts = parts[:i]
	}
	return parts
}
