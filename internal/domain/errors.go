package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrNotLoadable      = errors.New("event artifacts not loadable")
	ErrInvalidEventID   = errors.New("invalid event id")
	ErrIncidentConflict = errors.New("event already holds a different incident text")
	ErrEmptyIncident    = errors.New("incident text is empty")
	ErrInvalidAgentID   = errors.New("invalid agent id")
)

// InsufficientInputError is returned when fewer than two agents have both
// evidence and claims. A decision over fewer agents is not meaningful.
type InsufficientInputError struct {
	Agents int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("insufficient input: need at least 2 agents with evidence and claims, got %d", e.Agents)
}
