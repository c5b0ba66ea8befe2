package deploy

import (
	"context"
	"fmt"
)

// RegisterRevision submits a candidate document under its task family
// and returns the revision the control plane assigned. Every call
// creates a fresh revision, even for a candidate identical to an
// existing one; the full registration history is the audit trail.
func (c *TaskDefinitionClient) RegisterRevision(ctx context.Context, candidate TaskDocument) (int32, error) {
	out, err := c.call(ctx, registerTaskDefinitionTarget, map[string]any(candidate))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRegistrationRejected, err)
	}
	td, ok := out["taskDefinition"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: control plane returned no task definition", ErrRegistrationRejected)
	}
	revision, ok := td["revision"].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: control plane returned no revision", ErrRegistrationRejected)
	}
	return int32(revision), nil
}
