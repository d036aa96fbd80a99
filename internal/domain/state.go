package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// State is one entry in a run's append-only status history.
// (WorkflowRunID, Status, Timestamp) is unique. Only the comment field may
// change after creation, and only through the annotation overlay.
type State struct {
	ID            string
	WorkflowRunID string
	Status        string
	Timestamp     time.Time
	Comment       string
	PayloadID     string
}

func (s State) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("state id is required")
	}
	if strings.TrimSpace(s.WorkflowRunID) == "" {
		return errors.New("workflow run id is required")
	}
	if strings.TrimSpace(s.Status) == "" {
		return errors.New("status is required")
	}
	if s.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

func (s State) IsTerminal() bool { return IsTerminalStatus(s.Status) }
func (s State) IsDraft() bool    { return IsDraftStatus(s.Status) }
func (s State) IsReady() bool    { return IsReadyStatus(s.Status) }
func (s State) IsRunning() bool  { return IsRunningStatus(s.Status) }

// Payload is the opaque versioned document attached to a state. Immutable
// once associated.
type Payload struct {
	ID          string
	RefID       string
	Version     string
	Data        json.RawMessage
	ContentHash string
	ObjectKey   string
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("payload id is required")
	}
	if strings.TrimSpace(p.RefID) == "" {
		return errors.New("payload ref id is required")
	}
	if strings.TrimSpace(p.Version) == "" {
		return errors.New("payload version is required")
	}
	return nil
}

// LatestState picks the state with the maximum timestamp. Insertion order is
// irrelevant; ties resolve to the earlier list entry.
func LatestState(states []State) (State, bool) {
	if len(states) == 0 {
		return State{}, false
	}
	latest := states[0]
	for _, s := range states[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, true
}

// DefaultRunningWindow is how much wall-clock time must pass before a
// repeated RUNNING observation counts as a distinct state.
const DefaultRunningWindow = time.Hour

// AcceptTransition decides whether next constitutes a new state on top of
// current. Rules:
//   - no prior state: accept
//   - current terminal: reject (only the annotation overlay may follow)
//   - different normalized status: accept
//   - same status: accept only a RUNNING repeat older than runningWindow
func AcceptTransition(current *State, next State, runningWindow time.Duration) bool {
	if current == nil {
		return true
	}
	if current.IsTerminal() {
		return false
	}
	curStatus := NormalizeStatus(current.Status)
	nextStatus := NormalizeStatus(next.Status)
	if curStatus != nextStatus {
		return true
	}
	if runningWindow <= 0 {
		runningWindow = DefaultRunningWindow
	}
	if IsRunningStatus(nextStatus) && next.Timestamp.Sub(current.Timestamp) > runningWindow {
		return true
	}
	return false
}
