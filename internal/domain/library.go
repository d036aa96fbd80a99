package domain

import (
	"errors"
	"strings"
)

// Library mirrors an externally owned library identity. Records created here
// on demand are stop-gaps until the authoritative metadata sync lands them.
type Library struct {
	ID        string
	LibraryID string
	Stopgap   bool
}

func (l Library) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("library id is required")
	}
	if strings.TrimSpace(l.LibraryID) == "" {
		return errors.New("external library id is required")
	}
	return nil
}

// Readset mirrors an externally owned read group. Natural key:
// (RGID, LibraryOID).
type Readset struct {
	ID         string
	RGID       string
	LibraryOID string
}

func (r Readset) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("readset id is required")
	}
	if strings.TrimSpace(r.RGID) == "" {
		return errors.New("rgid is required")
	}
	if strings.TrimSpace(r.LibraryOID) == "" {
		return errors.New("owning library id is required")
	}
	return nil
}
