// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// FakeApp is a throwaway process posing as a protected application.
// It runs a copy of sleep(1) renamed so that the kernel reports the
// chosen name as the process comm.
type FakeApp struct {
	Name    string
	ExePath string

	cmd    *exec.Cmd
	exited chan struct{}
}

// NewFakeApp copies the sleep binary to dir/name.
func NewFakeApp(dir, name string) (*FakeApp, error) {
	src, err := exec.LookPath("sleep")
	if err != nil {
		return nil, fmt.Errorf("sleep not found: %w", err)
	}

	dst := filepath.Join(dir, name)
	if err := copyFile(src, dst); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return &FakeApp{Name: name, ExePath: dst}, nil
}

// Start launches the fake app for at most d.
func (f *FakeApp) Start(d time.Duration) error {
	f.cmd = exec.Command(f.ExePath, fmt.Sprintf("%d", int(d.Seconds())))
	if err := f.cmd.Start(); err != nil {
		return err
	}
	f.exited = make(chan struct{})
	go func() {
		_ = f.cmd.Wait()
		close(f.exited)
	}()
	return nil
}

// PID returns the process ID, or 0 before Start.
func (f *FakeApp) PID() int {
	if f.cmd == nil || f.cmd.Process == nil {
		return 0
	}
	return f.cmd.Process.Pid
}

// Exited reports whether the process has terminated and been reaped.
func (f *FakeApp) Exited() bool {
	if f.exited == nil {
		return false
	}
	select {
	case <-f.exited:
		return true
	default:
		return false
	}
}

// Stop kills the process if it is still running.
func (f *FakeApp) Stop() {
	if f.cmd == nil || f.cmd.Process == nil || f.Exited() {
		return
	}
	_ = f.cmd.Process.Kill()
	<-f.exited
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
