package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// AdvisoryEvaluator loads a bundled rego policy and evaluates it against a
// task/target input to produce a supplementary signal, recorded as a
// PolicySnapshot node. It is never consulted by ScopePermitted or
// WritePermitted; those remain pure and authoritative.
type AdvisoryEvaluator struct {
	query  rego.PreparedEvalQuery
	digest string
}

// NewAdvisoryEvaluator compiles the given rego module (package
// leviathan.guard, rule `allow`) once at startup.
func NewAdvisoryEvaluator(ctx context.Context, module string) (*AdvisoryEvaluator, error) {
	sum := sha256.Sum256([]byte(module))
	q, err := rego.New(
		rego.Query("data.leviathan.guard.allow"),
		rego.Module("guard.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile advisory policy: %w", err)
	}
	return &AdvisoryEvaluator{query: q, digest: hex.EncodeToString(sum[:])}, nil
}

// Evaluate returns the boolean decision and the module digest to attach
// to a PolicySnapshot node's properties. Errors are returned, not
// swallowed — callers decide whether an evaluation failure is fatal to
// the advisory snapshot (it is never fatal to the attempt).
func (a *AdvisoryEvaluator) Evaluate(ctx context.Context, input map[string]any) (bool, string, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, a.digest, fmt.Errorf("evaluate advisory policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, a.digest, nil
	}
	allow, _ := rs[0].Expressions[0].Value.(bool)
	return allow, a.digest, nil
}

// DefaultModule is the bundled fallback policy: advisory-allow everything
// that the pure guard would already permit is expected to be mirrored
// here by operators; shipping with allow=true keeps the snapshot
// informative without ever being more permissive than the pure guard.
const DefaultModule = `package leviathan.guard

default allow = true
`
