package domain

import (
	"errors"
	"strings"
)

// RunContext use cases.
const (
	UsecaseCompute = "COMPUTE"
	UsecaseStorage = "STORAGE"
)

// RunContext statuses.
const (
	ContextActive   = "ACTIVE"
	ContextInactive = "INACTIVE"
)

// RunContext is a named compute or storage environment a run executes
// within. Natural key: (Name, Usecase).
type RunContext struct {
	ID          string
	Name        string
	Usecase     string
	Description string
	Status      string
}

func (c RunContext) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("run context id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("run context name is required")
	}
	switch c.Usecase {
	case UsecaseCompute, UsecaseStorage:
	default:
		return errors.New("run context usecase must be COMPUTE or STORAGE")
	}
	return nil
}
