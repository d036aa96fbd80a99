package hashing

import "testing"

func TestIdentityDigest_Deterministic(t *testing.T) {
	a := IdentityDigest([]string{"0.0.1", "wfr.01A", "202401019abcdef0", "run-name", "READY", "wfl.01B"})
	b := IdentityDigest([]string{"0.0.1", "wfr.01A", "202401019abcdef0", "run-name", "READY", "wfl.01B"})
	if a != b {
		t.Fatalf("same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("digest length=%d, want 16 hex chars", len(a))
	}
}

func TestIdentityDigest_OrderIndependent(t *testing.T) {
	a := IdentityDigest([]string{"lib.01A", "lib.01B", "rds.01C", "wfr.01D"})
	b := IdentityDigest([]string{"wfr.01D", "rds.01C", "lib.01B", "lib.01A"})
	if a != b {
		t.Fatalf("reordering changed the digest")
	}
}

func TestIdentityDigest_DropsEmpty(t *testing.T) {
	a := IdentityDigest([]string{"x", "", "y", ""})
	b := IdentityDigest([]string{"x", "y"})
	if a != b {
		t.Fatalf("empty values affected the digest")
	}
}

func TestIdentityDigest_FieldSensitive(t *testing.T) {
	base := IdentityDigest([]string{"0.0.1", "wfr.01A", "READY"})
	changed := IdentityDigest([]string{"0.0.1", "wfr.01A", "FAILED"})
	if base == changed {
		t.Fatalf("field change did not change the digest")
	}
	extra := IdentityDigest([]string{"0.0.1", "wfr.01A", "READY", "lib.01B"})
	if base == extra {
		t.Fatalf("added field did not change the digest")
	}
}
