package strategy

import (
	"bytes"
	"context"
	"os/exec"
	"sync"

	"github.com/pkg/errors"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/types"
	"github.com/chaosworks/havok/pkg/utils/stringutils"
)

// CommandStrategy injects faults by running an operator-supplied shell
// command pair, the inject command runs with HAVOK_TARGET set and the remove
// command with HAVOK_HANDLE set. Useful for tc/iptables style faults that
// already have a cli.
type CommandStrategy struct {
	mu         sync.Mutex
	handles    map[string]types.Target
	removeCmds map[string]string
}

// NewCommandStrategy returns the command fault strategy
func NewCommandStrategy() *CommandStrategy {
	return &CommandStrategy{
		handles:    map[string]types.Target{},
		removeCmds: map[string]string{},
	}
}

func (s *CommandStrategy) Name() string {
	return "command"
}

// Validate checks that both the inject and remove commands are present
func (s *CommandStrategy) Validate(params map[string]string) error {
	if params["injectCmd"] == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeValidation, Reason: "injectCmd param is required for the command strategy"}
	}
	if params["removeCmd"] == "" {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeValidation, Reason: "removeCmd param is required for the command strategy"}
	}
	return nil
}

// Inject runs the inject command against the target and returns the handle
func (s *CommandStrategy) Inject(ctx context.Context, target types.Target, params map[string]string) (string, error) {
	handle := "command-" + target.ID + "-" + stringutils.GetRunID()

	out, err := s.run(ctx, params["injectCmd"], "HAVOK_TARGET="+target.ID, "HAVOK_HANDLE="+handle)
	if err != nil {
		return "", errors.Errorf("inject command failed for target %s, %v, output: %s", target.ID, err, out)
	}

	// the remove command travels with the handle so that the cleanup daemon
	// does not need the original params to undo the fault
	s.mu.Lock()
	s.handles[handle] = target
	s.removeCmds[handle] = params["removeCmd"]
	s.mu.Unlock()

	log.Infof("[Chaos]: Inject command succeeded on target %s", target.ID)
	return handle, nil
}

// Remove runs the remove command recorded for the handle, unknown handles
// succeed as a no-op
func (s *CommandStrategy) Remove(ctx context.Context, handle string) error {
	s.mu.Lock()
	target, ok := s.handles[handle]
	cmd := s.removeCmds[handle]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	out, err := s.run(ctx, cmd, "HAVOK_TARGET="+target.ID, "HAVOK_HANDLE="+handle)
	if err != nil {
		return errors.Errorf("remove command failed for handle %s, %v, output: %s", handle, err, out)
	}

	s.mu.Lock()
	delete(s.handles, handle)
	delete(s.removeCmds, handle)
	s.mu.Unlock()
	return nil
}

// IsActive reports whether the handle is still tracked
func (s *CommandStrategy) IsActive(ctx context.Context, handle string) (bool, error) {
	s.mu.Lock()
	_, ok := s.handles[handle]
	s.mu.Unlock()
	return ok, nil
}

func (s *CommandStrategy) run(ctx context.Context, command string, env ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(cmd.Environ(), env...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
