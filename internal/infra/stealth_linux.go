//go:build linux

package infra

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const selfCommPath = "/proc/self/comm"

// newPlatformNamer prefers /proc/self/comm, which renames the thread group
// leader that ps and top display. prctl(PR_SET_NAME) only renames the calling
// OS thread, so it is the fallback when procfs is not mounted.
func newPlatformNamer() ProcessNamer {
	if _, err := os.Stat(selfCommPath); err == nil {
		return &procCommNamer{path: selfCommPath}
	}
	return &prctlNamer{}
}

// procCommNamer reads and writes a comm file.
type procCommNamer struct {
	path string
}

func (n *procCommNamer) SetName(name string) error {
	f, err := os.OpenFile(n.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(name)
	return err
}

func (n *procCommNamer) Name() (string, error) {
	data, err := os.ReadFile(n.path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// prctlNamer renames the OS thread it runs on, not the process: goroutines
// migrate between threads, so a later PR_GET_NAME may read a different
// thread. Name therefore reports the last name set through this namer and
// only asks the kernel before the first SetName.
type prctlNamer struct {
	mu   sync.Mutex
	last string
}

func (n *prctlNamer) SetName(name string) error {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0); err != nil {
		return err
	}
	n.last = truncateComm(name)
	return nil
}

func (n *prctlNamer) Name() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last != "" {
		return n.last, nil
	}

	var buf [maxCommLen + 1]byte
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf[:], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return string(buf[:]), nil
}
