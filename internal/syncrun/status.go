// Package syncrun records the lifecycle of one location's catalog sync run.
package syncrun

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the phase a run has reached.
type Status uint8

const (
	StatusStarted Status = iota + 1
	StatusStartedRemoteInventory
	StatusCompletedRemoteInventory
	StatusUpdatingInventory
	StatusFailed
	StatusCompleted
)

var (
	// ErrIllegalTransition is returned when a status change skips or reverses a phase.
	ErrIllegalTransition = errors.New("syncrun: illegal status transition")
	// ErrNotFound indicates a missing run.
	ErrNotFound = errors.New("syncrun: run not found")
	// ErrUnknownStatus indicates a status string outside the enum.
	ErrUnknownStatus = errors.New("syncrun: unknown status")
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusStarted,
	StatusStartedRemoteInventory,
	StatusCompletedRemoteInventory,
	StatusUpdatingInventory,
	StatusFailed,
	StatusCompleted,
}

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusStartedRemoteInventory:
		return "startedRemoteInventory"
	case StatusCompletedRemoteInventory:
		return "completedRemoteInventory"
	case StatusUpdatingInventory:
		return "updatingInventory"
	case StatusFailed:
		return "failed"
	case StatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus converts the persisted form back into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusCompleted:
		return true
	case StatusStarted, StatusStartedRemoteInventory, StatusCompletedRemoteInventory, StatusUpdatingInventory:
		return false
	}
	return true
}

// CanAdvance reports whether a run in s may move to next. The success path
// moves one phase at a time; failed is reachable from any non-terminal phase.
func (s Status) CanAdvance(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusFailed:
		return true
	case StatusStartedRemoteInventory:
		return s == StatusStarted
	case StatusCompletedRemoteInventory:
		return s == StatusStartedRemoteInventory
	case StatusUpdatingInventory:
		return s == StatusCompletedRemoteInventory
	case StatusCompleted:
		return s == StatusUpdatingInventory
	case StatusStarted:
		return false
	}
	return false
}

// predecessors lists the statuses from which next is reachable.
func predecessors(next Status) []string {
	var out []string
	for _, s := range Statuses {
		if s.CanAdvance(next) {
			out = append(out, s.String())
		}
	}
	return out
}

// Run is one persisted sync run of one location.
type Run struct {
	ID          int64
	RunID       uuid.UUID
	LocationID  int64
	Vendor      string
	Status      Status
	Message     string
	ItemCount   int
	InitiatedBy int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
