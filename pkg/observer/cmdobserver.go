package observer

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chaosworks/havok/pkg/probe/comparator"
	"github.com/chaosworks/havok/pkg/types"
	"github.com/chaosworks/havok/pkg/utils/stringutils"
)

// CmdObserver samples a signal by running a shell command and parsing its
// stdout as a float value, it passes when the value matches the criteria
type CmdObserver struct {
	ObserverName string
	Command      string
	Criteria     string
	Value        float64
}

// NewCmdObserver returns a command observer with the given pass criteria
func NewCmdObserver(name, command, criteria string, value float64) *CmdObserver {
	return &CmdObserver{
		ObserverName: name,
		Command:      command,
		Criteria:     criteria,
		Value:        value,
	}
}

func (o *CmdObserver) Name() string {
	return o.ObserverName
}

// Start opens the observation session
func (o *CmdObserver) Start(targets []types.Target) (string, error) {
	return o.ObserverName + "-" + stringutils.GetRunID(), nil
}

// Observe runs the command and compares the parsed stdout to the criteria
func (o *CmdObserver) Observe(handle string) (types.Observation, error) {
	cmd := exec.Command("/bin/sh", "-c", o.Command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return types.Observation{}, errors.Errorf("observer command failed, %v, output: %s", err, out.String())
	}

	raw := strings.TrimSpace(out.String())
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return types.Observation{}, errors.Errorf("unable to parse observer output '%s' as a number, %v", raw, err)
	}

	passed := comparator.FirstValue(o.Value).
		SecondValue(value).
		Criteria(o.Criteria).
		CompareFloat() == nil

	return types.Observation{
		Observer:  o.ObserverName,
		Timestamp: time.Now(),
		Value:     value,
		Message:   raw,
		Passed:    &passed,
	}, nil
}

// Stop releases the observation session
func (o *CmdObserver) Stop(handle string) error {
	return nil
}
