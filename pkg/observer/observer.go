package observer

import (
	"github.com/chaosworks/havok/pkg/types"
)

// Observer samples one signal for a set of targets. Start returns a handle
// that scopes one observation session, Stop releases it.
type Observer interface {
	Name() string
	Start(targets []types.Target) (string, error)
	Observe(handle string) (types.Observation, error)
	Stop(handle string) error
}
