package document

import "testing"

func TestInsertRequestValidate(t *testing.T) {
	r := InsertRequest{Content: "hello"}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	r = InsertRequest{Source: "manual.pdf"}
	if err := r.Validate(); err == nil {
		t.Error("empty content must fail")
	}
}

func TestQueryRequestDefaults(t *testing.T) {
	r := QueryRequest{Query: "what changed"}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.Mode != ModeHybrid {
		t.Errorf("default mode = %s, want hybrid", r.Mode)
	}
	if r.TopK != 5 {
		t.Errorf("default top_k = %d, want 5", r.TopK)
	}
}

func TestQueryRequestValidate(t *testing.T) {
	r := QueryRequest{}
	if err := r.Validate(); err == nil {
		t.Error("empty query must fail")
	}

	r = QueryRequest{Query: "q", Mode: Mode("telepathic")}
	if err := r.Validate(); err == nil {
		t.Error("unknown mode must fail")
	}

	for _, m := range []Mode{ModeNaive, ModeLocal, ModeGlobal, ModeHybrid} {
		r := QueryRequest{Query: "q", Mode: m, TopK: 3}
		if err := r.Validate(); err != nil {
			t.Errorf("mode %s rejected: %v", m, err)
		}
		if r.TopK != 3 {
			t.Errorf("explicit top_k overwritten for %s", m)
		}
	}
}
