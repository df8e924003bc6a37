//go:build !windows

package process

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestTerminate_NoProcess(t *testing.T) {
	t.Parallel()

	for _, pid := range []int{0, -1, 999999999} {
		if err := Terminate(pid, 10*time.Millisecond); err != nil {
			t.Errorf("Terminate(%d) = %v, want nil", pid, err)
		}
		if Alive(pid) {
			t.Errorf("Alive(%d) = true", pid)
		}
	}
}

func TestTerminate_ProcessGroup(t *testing.T) {
	t.Parallel()

	// The shell leads its own group with a child sleeping in it.
	cmd := exec.Command("sh", "-c", "sleep 30 & wait")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start shell: %v", err)
	}
	pid := cmd.Process.Pid
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()

	if !Alive(pid) {
		t.Fatal("group should be alive after start")
	}
	if err := Terminate(pid, 200*time.Millisecond); err != nil {
		t.Fatalf("Terminate() = %v", err)
	}

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("process still running after Terminate")
	}
}
