package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Entity id prefixes. Ids look like "wfr.01J8X2M9PZK4Q3T6V7W8Y9A0B1".
const (
	PrefixWorkflow         = "wfl"
	PrefixWorkflowRun      = "wfr"
	PrefixState            = "stt"
	PrefixPayload          = "pld"
	PrefixAnalysis         = "ana"
	PrefixAnalysisRun      = "anr"
	PrefixAnalysisRunState = "ars"
	PrefixLibrary          = "lib"
	PrefixReadset          = "rds"
	PrefixRunContext       = "rnx"
)

const ulidLen = 26

func NewID(prefix string) string {
	return prefix + "." + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// SanitizeID strips any prefix, keeping the trailing ULID. External systems
// deliver ids both with and without prefixes; lookups use the bare ULID form
// consistently.
func SanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > ulidLen {
		return id[len(id)-ulidLen:]
	}
	return id
}

// NewPortalRunID builds the 16-character portal run id: an 8-digit UTC date
// followed by 8 random hex characters.
func NewPortalRunID() string {
	u := uuid.New()
	return fmt.Sprintf("%s%x", time.Now().UTC().Format("20060102"), u[:4])
}

// NewPayloadRefID returns the externally visible payload reference id.
func NewPayloadRefID() string {
	return uuid.NewString()
}
