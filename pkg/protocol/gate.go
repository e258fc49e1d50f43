package protocol

import "context"

// Decision is the verdict of an external approval gate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// DecisionGate is an optional external collaborator consulted at a step
// boundary when a workflow needs an approval verdict before proceeding,
// such as deployment gating. The engine never implements the gating policy
// itself.
type DecisionGate interface {
	Evaluate(ctx context.Context, signals map[string]any) (Decision, error)
}
