package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/observer"
	"github.com/chaosworks/havok/pkg/types"
)

// ObserverSpec declares one observer in the run file
type ObserverSpec struct {
	Name       string  `yaml:"name"`
	Kind       string  `yaml:"kind"`
	URL        string  `yaml:"url,omitempty"`
	Command    string  `yaml:"command,omitempty"`
	Comparator string  `yaml:"comparator,omitempty"`
	Value      float64 `yaml:"value,omitempty"`
	TimeoutMs  int     `yaml:"timeoutMs,omitempty"`
}

// RunFile is the YAML document the cli consumes: one experiment definition,
// the candidate target population and the observers wired for it
type RunFile struct {
	Experiment types.Experiment `yaml:"experiment"`
	Targets    []types.Target   `yaml:"targets"`
	Observers  []ObserverSpec   `yaml:"observers,omitempty"`
}

// Load reads and parses a run file
func Load(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    "unable to read run file: " + err.Error(),
		}
	}
	return Parse(data)
}

// Parse decodes a run file document
func Parse(data []byte) (*RunFile, error) {
	var rf RunFile
	if err := yaml.UnmarshalStrict(data, &rf); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    "unable to parse run file: " + err.Error(),
		}
	}
	if rf.Experiment.Name == "" {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    "run file declares no experiment",
		}
	}
	if len(rf.Targets) == 0 {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    "run file declares no candidate targets",
		}
	}
	return &rf, nil
}

// BuildObservers constructs the declared observers keyed by name
func (rf *RunFile) BuildObservers() (map[string]observer.Observer, error) {
	observers := map[string]observer.Observer{}
	for _, spec := range rf.Observers {
		timeout := 5 * time.Second
		if spec.TimeoutMs > 0 {
			timeout = time.Duration(spec.TimeoutMs) * time.Millisecond
		}
		switch spec.Kind {
		case "http":
			observers[spec.Name] = observer.NewHTTPObserver(spec.Name, spec.URL, timeout, spec.Comparator, spec.Value)
		case "command":
			observers[spec.Name] = observer.NewCmdObserver(spec.Name, spec.Command, spec.Comparator, spec.Value)
		default:
			return nil, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeValidation,
				Reason:    "unknown observer kind '" + spec.Kind + "' for observer '" + spec.Name + "'",
			}
		}
	}
	return observers, nil
}
