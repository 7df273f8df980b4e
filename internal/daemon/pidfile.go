// Package daemon tracks the running API server through a PID file kept in
// the state directory. Only one server may own a database at a time.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
)

// PIDFile manages a PID file for server process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Claim records the current process as the owner. A file left behind by a
// process that is no longer alive is taken over. The returned release
// removes the file if this process still owns it.
func (p *PIDFile) Claim() (release func(), err error) {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if err := p.WritePID(os.Getpid()); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return func() {
		if pid, err := p.Read(); err == nil && pid == os.Getpid() {
			_ = os.Remove(p.Path)
		}
	}, nil
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// IsRunning reports the recorded PID and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, alive(pid)
}

// Stop asks the recorded process to shut down. A stale file is removed and
// reported as ErrNotRunning.
func (p *PIDFile) Stop() (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = os.Remove(p.Path)
		}
		return pid, ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return pid, fmt.Errorf("stop process %d: %w", pid, err)
	}
	return pid, nil
}
