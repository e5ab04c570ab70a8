package events

import (
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/types"
)

const (
	// TypeNormal marks the routine lifecycle events
	TypeNormal = "Normal"
	// TypeWarning marks the events that deserve eyes
	TypeWarning = "Warning"
)

// GenerateEvent records a lifecycle event in the experiment context and
// mirrors it to the logger
func GenerateEvent(ec *types.ExperimentContext, reason, message, eventType string) {
	ec.AddEvent(reason, message, eventType)
	switch eventType {
	case TypeWarning:
		log.InfoWithValues("[Event]: "+message, map[string]interface{}{
			"Reason":       reason,
			"Type":         eventType,
			"ExperimentID": ec.ID,
		})
	default:
		log.InfoWithValues("[Event]: "+message, map[string]interface{}{
			"Reason":       reason,
			"ExperimentID": ec.ID,
		})
	}
}
