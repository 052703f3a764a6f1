package captcha

import (
	"context"
	"fmt"
)

// DisabledSolver implements Solver but always fails, for deployments
// with no automated captcha solver configured. Its presence means a
// login always falls through to HumanFallback rather than erroring at
// startup over a missing optional dependency.
type DisabledSolver struct {
	name   string
	reason string
}

// NewDisabledSolver builds a Solver that rejects every call.
func NewDisabledSolver(name, reason string) *DisabledSolver {
	return &DisabledSolver{name: name, reason: reason}
}

func (d *DisabledSolver) Name() string { return d.name }

func (d *DisabledSolver) Solve(_ context.Context, _ []byte) (string, float64, error) {
	return "", 0, fmt.Errorf("captcha solver %q is disabled: %s", d.name, d.reason)
}
