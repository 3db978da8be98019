package stack

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Description is a read-only view of a stack.
type Description struct {
	Name    string
	Status  Status
	Reason  string
	Outputs Outputs
}

// Describe returns the current status of the named stack and, when it exists,
// its outputs. An absent or deleted stack is not an error.
func (r *Reconciler) Describe(ctx context.Context, name string) (*Description, error) {
	status, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	desc := &Description{Name: name, Status: status, Outputs: Outputs{}}
	if status.Kind == StatusAbsent || status.Kind == StatusDeleteComplete {
		return desc, nil
	}

	st, err := r.describe(ctx, name)
	if err != nil {
		if isNotFoundError(err) {
			return desc, nil
		}
		return nil, err
	}
	desc.Status = ParseStatus(st.StackStatus)
	desc.Reason = aws.ToString(st.StackStatusReason)
	desc.Outputs = outputsFromSDK(st.Outputs)
	return desc, nil
}

// Destroy deletes the named stack and waits for the deletion to finish. It
// returns false without calling the provider when the stack does not exist.
func (r *Reconciler) Destroy(ctx context.Context, name string, handler EventHandler) (bool, error) {
	status, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		return false, err
	}
	if status.Kind == StatusAbsent || status.Kind == StatusDeleteComplete {
		r.logger.Info("stack does not exist, nothing to delete", "stack", name)
		return false, nil
	}
	if err := r.delete(ctx, name, handler); err != nil {
		return false, err
	}
	r.logger.Info("stack deleted", "stack", name)
	return true, nil
}
