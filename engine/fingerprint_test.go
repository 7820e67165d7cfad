package engine

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stepID := rapid.StringMatching(`[a-z_]{1,16}`).Draw(t, "step")
		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,12}`), 0, 8).Draw(t, "keys")
		rules := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,12}`), 0, 8).Draw(t, "rules")

		shuffledKeys := rapid.Permutation(keys).Draw(t, "shuffled_keys")
		shuffledRules := rapid.Permutation(rules).Draw(t, "shuffled_rules")

		a := Fingerprint(stepID, keys, rules)
		b := Fingerprint(stepID, shuffledKeys, shuffledRules)
		if a != b {
			t.Fatalf("fingerprint depends on input order: %s != %s", a, b)
		}
		if len(a) != fingerprintLen {
			t.Fatalf("unexpected fingerprint length %d", len(a))
		}
	})
}

func TestFingerprint_SensitiveToInputs(t *testing.T) {
	base := Fingerprint("extract", []string{"loaded_files"}, []string{"extract_post"})

	cases := map[string]string{
		"different step": Fingerprint("write", []string{"loaded_files"}, []string{"extract_post"}),
		"extra key":      Fingerprint("extract", []string{"loaded_files", "partial"}, []string{"extract_post"}),
		"different rule": Fingerprint("extract", []string{"loaded_files"}, []string{"extract_pre"}),
	}
	for name, fp := range cases {
		if fp == base {
			t.Errorf("%s produced identical fingerprint %s", name, fp)
		}
	}
}

func TestFingerprint_StepVsKeyAmbiguity(t *testing.T) {
	// The canonical encoding keeps fields separate: moving a string
	// between slots must change the hash.
	a := Fingerprint("s", []string{"x"}, nil)
	b := Fingerprint("s", nil, []string{"x"})
	if a == b {
		t.Error("data keys and failed rules hashed into the same slot")
	}
}

func TestLoopDetector_RejectsRepeat(t *testing.T) {
	d := NewLoopDetector()
	fp := Fingerprint("extract", []string{"loaded_files"}, []string{"extract_post"})

	if err := d.Observe("extract", fp); err != nil {
		t.Fatalf("first observation must pass: %v", err)
	}

	err := d.Observe("extract", fp)
	if err == nil {
		t.Fatal("second identical observation must fail")
	}
	var loop *LoopDetectedError
	if !errors.As(err, &loop) {
		t.Fatalf("expected LoopDetectedError, got %T", err)
	}
	if loop.StepID != "extract" || loop.Fingerprint != fp {
		t.Errorf("unexpected error contents: %+v", loop)
	}
}

func TestLoopDetector_ChangedShapeIsNotALoop(t *testing.T) {
	d := NewLoopDetector()

	first := Fingerprint("extract", []string{"loaded_files"}, []string{"extract_post"})
	// A partial agent mutation added a key between the failures.
	second := Fingerprint("extract", []string{"loaded_files", "raw_response"}, []string{"extract_post"})

	if err := d.Observe("extract", first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := d.Observe("extract", second); err != nil {
		t.Errorf("changed data shape must not trip the detector: %v", err)
	}
}

func TestLoopDetector_ScopedPerStep(t *testing.T) {
	d := NewLoopDetector()
	fp := Fingerprint("extract", []string{"k"}, []string{"r"})

	if err := d.Observe("extract", fp); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Same fingerprint text under a different step name is a different
	// situation.
	if err := d.Observe("write", fp); err != nil {
		t.Errorf("fingerprints are scoped per step: %v", err)
	}
}
