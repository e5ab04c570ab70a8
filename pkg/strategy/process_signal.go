package strategy

import (
	"context"
	"strconv"
	"sync"
	"syscall"

	"github.com/pkg/errors"

	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/types"
	"github.com/chaosworks/havok/pkg/utils/stringutils"
)

// ProcessSignalStrategy pauses a target process with SIGSTOP and resumes it
// with SIGCONT on removal. The target ID holds the pid.
type ProcessSignalStrategy struct {
	mu      sync.Mutex
	handles map[string]int
}

// NewProcessSignalStrategy returns the process-signal fault strategy
func NewProcessSignalStrategy() *ProcessSignalStrategy {
	return &ProcessSignalStrategy{handles: map[string]int{}}
}

func (s *ProcessSignalStrategy) Name() string {
	return "process-signal"
}

// Validate checks the strategy parameters before any side effect
func (s *ProcessSignalStrategy) Validate(params map[string]string) error {
	// no mandatory params, the pid comes from the target itself
	return nil
}

// Inject stops the target process and returns the fault handle
func (s *ProcessSignalStrategy) Inject(ctx context.Context, target types.Target, params map[string]string) (string, error) {
	pid, err := strconv.Atoi(target.ID)
	if err != nil {
		return "", errors.Errorf("unable to convert target id %s to pid, %v", target.ID, err)
	}

	log.Infof("[Chaos]: Pausing %v process", pid)
	if err := syscall.Kill(pid, syscall.SIGSTOP); err != nil {
		return "", errors.Errorf("unable to pause process %v, %v", pid, err)
	}

	handle := "process-signal-" + target.ID + "-" + stringutils.GetRunID()
	s.mu.Lock()
	s.handles[handle] = pid
	s.mu.Unlock()
	return handle, nil
}

// Remove resumes the paused process, unknown handles succeed as a no-op
func (s *ProcessSignalStrategy) Remove(ctx context.Context, handle string) error {
	s.mu.Lock()
	pid, ok := s.handles[handle]
	delete(s.handles, handle)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	log.Infof("[Cleanup]: Resuming %v process", pid)
	if err := syscall.Kill(pid, syscall.SIGCONT); err != nil {
		// the process may have exited while paused, that still counts as removed
		if err == syscall.ESRCH {
			return nil
		}
		s.mu.Lock()
		s.handles[handle] = pid
		s.mu.Unlock()
		return errors.Errorf("unable to resume process %v, %v", pid, err)
	}
	return nil
}

// IsActive reports whether the handle still maps to a live paused process
func (s *ProcessSignalStrategy) IsActive(ctx context.Context, handle string) (bool, error) {
	s.mu.Lock()
	pid, ok := s.handles[handle]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	// signal 0 probes liveness without delivering anything
	if err := syscall.Kill(pid, 0); err != nil {
		return false, nil
	}
	return true, nil
}
