package captcha

import (
	"context"
	"testing"
)

type stubSolver struct {
	name string
}

func (s stubSolver) Name() string { return s.name }
func (s stubSolver) Solve(_ context.Context, _ []byte) (string, float64, error) {
	return "AB12", 0.9, nil
}

func TestRegistryResolveRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("ocr", stubSolver{name: "ocr"})

	solver := r.Resolve("ocr")
	text, confidence, err := solver.Solve(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if text != "AB12" || confidence != 0.9 {
		t.Fatalf("unexpected solve result: %q %v", text, confidence)
	}
}

func TestRegistryResolveUnregisteredReturnsDisabled(t *testing.T) {
	r := NewRegistry()
	solver := r.Resolve("missing")
	if _, _, err := solver.Solve(context.Background(), nil); err == nil {
		t.Fatal("expected disabled solver to error")
	}
}
