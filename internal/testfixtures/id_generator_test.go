package testfixtures

import (
	"testing"

	"github.com/google/uuid"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("entity")

	first := gen.Next()
	second := gen.Next()

	if first != "entity-1" || second != "entity-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("resource")
	_ = gen.Next()
	gen.SetCounter(0)
	gen.SetPrefix("res")

	if next := gen.Next(); next != "res-1" {
		t.Fatalf("expected res-1 after reset, got %q", next)
	}
}

func TestIDGeneratorUUIDsAreDeterministic(t *testing.T) {
	first := NewIDGenerator("room").NextUUID()
	second := NewIDGenerator("room").NextUUID()

	if first != second {
		t.Fatalf("expected identical UUIDs, got %q and %q", first, second)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected a valid UUID, got %q", first)
	}
}

func TestIDGeneratorUUIDFuncAdvances(t *testing.T) {
	next := NewIDGenerator("participant").UUIDFunc()

	first, second := next(), next()
	if first == second {
		t.Fatalf("expected distinct UUIDs, got %q twice", first)
	}

	var nilGenerator *IDGenerator
	if _, err := uuid.Parse(nilGenerator.UUIDFunc()()); err != nil {
		t.Fatalf("expected nil generator to fall back to random UUIDs: %v", err)
	}
}
