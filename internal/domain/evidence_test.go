package domain

import (
	"testing"

	"github.com/google/uuid"
)

func item(key, value string) EvidenceItem {
	return EvidenceItem{
		EvidenceID:           uuid.New(),
		Type:                 EvidenceOther,
		Value:                value,
		Normalized:           Normalized{Key: key, Value: value},
		SourceSpans:          []SourceSpan{{StartChar: 0, EndChar: len(value), Quote: value}},
		ExtractionConfidence: 0.9,
	}
}

func TestNormalizedSet(t *testing.T) {
	e := &EvidenceExtraction{
		Evidence: []EvidenceItem{
			item("ip", "1.1.1.1"),
			item("ip", "1.1.1.1"),
			item("domain", "example.com"),
			item("", "orphan"),
			item("user", ""),
		},
	}

	set := e.NormalizedSet()
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(set), set)
	}
	for _, want := range []string{"ip=1.1.1.1", "domain=example.com"} {
		if _, ok := set[want]; !ok {
			t.Errorf("missing %q", want)
		}
	}
}

func TestNormalizedSetIgnoresIDs(t *testing.T) {
	a := &EvidenceExtraction{Evidence: []EvidenceItem{item("ip", "10.0.0.1")}}
	b := &EvidenceExtraction{Evidence: []EvidenceItem{item("ip", "10.0.0.1")}}
	if a.Evidence[0].EvidenceID == b.Evidence[0].EvidenceID {
		t.Fatal("test setup: ids should differ")
	}
	sa, sb := a.NormalizedSet(), b.NormalizedSet()
	if len(sa) != 1 || len(sb) != 1 {
		t.Fatalf("unexpected sets %v %v", sa, sb)
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			t.Errorf("sets differ on %q", k)
		}
	}
}

func TestEvidenceTypeIsValid(t *testing.T) {
	if !EvidenceCommandLine.IsValid() {
		t.Error("command_line should be valid")
	}
	if EvidenceType("mitre_technique").IsValid() {
		t.Error("unknown type should be invalid")
	}
}
