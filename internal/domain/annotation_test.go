package domain

import (
	"slices"
	"testing"
)

func TestAllowedAnnotations(t *testing.T) {
	cases := []struct {
		current string
		want    []string
	}{
		{"", []string{StatusDeprecated}},
		{"FAILED", []string{StatusResolved}},
		{"failure", []string{StatusResolved}},
		{"SUCCEEDED", []string{StatusDeprecated}},
		{"DRAFT", []string{StatusDeprecated}},
		{"RUNNING", []string{StatusDeprecated}},
		{"QUEUED", []string{StatusDeprecated}},
		{"ABORTED", nil},
		{"RESOLVED", nil},
		{"DEPRECATED", nil},
	}
	for _, tc := range cases {
		got := AllowedAnnotations(tc.current)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("AllowedAnnotations(%q)=%v, want %v", tc.current, got, tc.want)
		}
	}
}

func TestValidateAnnotation(t *testing.T) {
	if err := ValidateAnnotation("FAILED", "RESOLVED", "operator fixed upstream data"); err != nil {
		t.Fatalf("expected RESOLVED from FAILED valid: %v", err)
	}
	if err := ValidateAnnotation("RUNNING", "DEPRECATED", "superseded by rerun"); err != nil {
		t.Fatalf("expected DEPRECATED from RUNNING valid: %v", err)
	}
	if err := ValidateAnnotation("", "DEPRECATED", "never started"); err != nil {
		t.Fatalf("expected DEPRECATED with no history valid: %v", err)
	}

	if err := ValidateAnnotation("SUCCEEDED", "RESOLVED", "comment"); err == nil {
		t.Fatalf("expected RESOLVED from SUCCEEDED rejected")
	}
	if err := ValidateAnnotation("FAILED", "DEPRECATED", "comment"); err == nil {
		t.Fatalf("expected DEPRECATED from FAILED rejected")
	}
	if err := ValidateAnnotation("", "RESOLVED", "comment"); err == nil {
		t.Fatalf("expected RESOLVED with no history rejected")
	}
	if err := ValidateAnnotation("FAILED", "RESOLVED", "  "); err == nil {
		t.Fatalf("expected missing comment rejected")
	}
	if err := ValidateAnnotation("FAILED", "SUCCEEDED", "comment"); err == nil {
		t.Fatalf("expected non-annotation status rejected")
	}
}
