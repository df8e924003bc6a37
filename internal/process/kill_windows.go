//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Terminate stops pid and its children with taskkill: first politely,
// then forced (/F) if the tree is still alive after grace.
func Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	_ = exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	if !Alive(pid) {
		return nil
	}
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// Alive reports whether pid is running.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	out, err := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid), "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}
