package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical status vocabulary. Unknown statuses pass through normalization
// unchanged (upper-cased), they are retained rather than rejected.
const (
	StatusDraft      = "DRAFT"
	StatusReady      = "READY"
	StatusRunning    = "RUNNING"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
	StatusAborted    = "ABORTED"
	StatusResolved   = "RESOLVED"
	StatusDeprecated = "DEPRECATED"
)

var statusAliases = map[string][]string{
	StatusDraft:     {"DRAFT", "INITIAL", "CREATED"},
	StatusReady:     {"READY"},
	StatusRunning:   {"RUNNING", "IN_PROGRESS"},
	StatusSucceeded: {"SUCCEEDED", "SUCCESS"},
	StatusFailed:    {"FAILED", "FAILURE", "FAIL"},
	StatusAborted:   {"ABORTED", "CANCELLED", "CANCELED"},
	StatusResolved:  {"RESOLVED"},
}

// alias (upper case) -> canonical name, built once at startup.
var statusIndex = buildStatusIndex()

func buildStatusIndex() map[string]string {
	idx := make(map[string]string, 16)
	for canonical, aliases := range statusAliases {
		for _, a := range aliases {
			idx[strings.ToUpper(a)] = canonical
		}
	}
	return idx
}

// LoadStatusAliases extends the alias index from a YAML file mapping canonical
// names to alias lists. Call before serving; the index is not safe for
// concurrent mutation.
func LoadStatusAliases(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read status aliases: %w", err)
	}
	var overrides map[string][]string
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("parse status aliases: %w", err)
	}
	for canonical, aliases := range overrides {
		canonical = strings.ToUpper(strings.TrimSpace(canonical))
		if canonical == "" {
			continue
		}
		for _, a := range aliases {
			if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
				statusIndex[a] = canonical
			}
		}
	}
	return nil
}

// NormalizeStatus maps a free-form status value onto the canonical
// vocabulary. Values without a known alias are retained upper-cased.
func NormalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	if canonical, ok := statusIndex[s]; ok {
		return canonical
	}
	return s
}

func IsTerminalStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusSucceeded, StatusFailed, StatusAborted:
		return true
	}
	return false
}

func IsDraftStatus(status string) bool {
	return NormalizeStatus(status) == StatusDraft
}

func IsReadyStatus(status string) bool {
	return NormalizeStatus(status) == StatusReady
}

func IsRunningStatus(status string) bool {
	return NormalizeStatus(status) == StatusRunning
}

func IsResolvedStatus(status string) bool {
	return NormalizeStatus(status) == StatusResolved
}
