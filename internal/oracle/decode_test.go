package oracle

import (
	"errors"
	"testing"
)

func TestParseDecision_FencedWithProse(t *testing.T) {
	raw := "Sure! Here is my move:\n```json\n{\"action\":\"Move\",\"parameters\":{\"distance\":12.5},\"thought\":\"go east\"}\n```"
	d, err := ParseDecision([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if d.Action != ActionMove || d.Parameters.Distance == nil || *d.Parameters.Distance != 12.5 || d.Thought != "go east" {
		t.Fatalf("decision=%+v", d)
	}
}

func TestParseDecision_CoercesLooseTypes(t *testing.T) {
	raw := `{"decision":{"action":"turn","parameters":{"angle":"45","duration":250.4,"targetId":7,"message":null}}}`
	d, err := ParseDecision([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if d.Parameters.Angle == nil || *d.Parameters.Angle != 45 {
		t.Fatalf("angle=%v", d.Parameters.Angle)
	}
	if d.Parameters.Duration == nil || *d.Parameters.Duration != 250 {
		t.Fatalf("duration=%v", d.Parameters.Duration)
	}
	if d.Parameters.TargetID != "7" || d.Parameters.Message != "" {
		t.Fatalf("params=%+v", d.Parameters)
	}
}

func TestParseDecision_DropsUnparseableNumbers(t *testing.T) {
	d, err := ParseDecision([]byte(`{"action":"move","parameters":{"distance":"far"}}`))
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if d.Parameters.Distance != nil {
		t.Fatalf("distance should be dropped, got %v", *d.Parameters.Distance)
	}
}

func TestParseDecision_RejectsMissingAction(t *testing.T) {
	for _, raw := range []string{
		`no json here`,
		`{"parameters":{}}`,
		`{"action":""}`,
		`{"action":42}`,
		`{"action":"move",`,
	} {
		if _, err := ParseDecision([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestParseInteraction(t *testing.T) {
	r, err := ParseInteraction([]byte(`{"reaction":"It creaks open."}`))
	if err != nil || r.Reaction != "It creaks open." {
		t.Fatalf("json: %+v %v", r, err)
	}
	r, err = ParseInteraction([]byte("  The crystal hums louder.  "))
	if err != nil || r.Reaction != "The crystal hums louder." {
		t.Fatalf("text: %+v %v", r, err)
	}
	if _, err := ParseInteraction([]byte("   ")); !errors.Is(err, ErrEmptyReaction) {
		t.Fatalf("empty: %v", err)
	}
}

func TestParseDecision_HugeDurationSaturates(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want int
	}{
		{`{"action":"idle","parameters":{"duration":1e19}}`, maxDurationMs},
		{`{"action":"idle","parameters":{"duration":-1e300}}`, -maxDurationMs},
	} {
		d, err := ParseDecision([]byte(tc.raw))
		if err != nil {
			t.Fatalf("ParseDecision(%s): %v", tc.raw, err)
		}
		if d.Parameters.Duration == nil || *d.Parameters.Duration != tc.want {
			t.Fatalf("%s: duration=%v want %d", tc.raw, d.Parameters.Duration, tc.want)
		}
	}
}
