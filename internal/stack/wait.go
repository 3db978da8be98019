package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
)

// Operation names the stack mutation being waited on.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// waitFor blocks until the named stack finishes op, bounded by maxWait.
func (r *Reconciler) waitFor(ctx context.Context, name string, op Operation) error {
	maxWait := r.opts.timeout(op)
	input := &cloudformation.DescribeStacksInput{StackName: aws.String(name)}
	minDelay, maxDelay := r.opts.WaitMinDelay, r.opts.WaitMaxDelay

	var err error
	switch op {
	case OperationCreate:
		err = cloudformation.NewStackCreateCompleteWaiter(r.api, func(o *cloudformation.StackCreateCompleteWaiterOptions) {
			o.MinDelay, o.MaxDelay = minDelay, maxDelay
		}).Wait(ctx, input, maxWait)
	case OperationUpdate:
		err = cloudformation.NewStackUpdateCompleteWaiter(r.api, func(o *cloudformation.StackUpdateCompleteWaiterOptions) {
			o.MinDelay, o.MaxDelay = minDelay, maxDelay
		}).Wait(ctx, input, maxWait)
	case OperationDelete:
		err = cloudformation.NewStackDeleteCompleteWaiter(r.api, func(o *cloudformation.StackDeleteCompleteWaiterOptions) {
			o.MinDelay, o.MaxDelay = minDelay, maxDelay
		}).Wait(ctx, input, maxWait)
	default:
		return fmt.Errorf("unknown stack operation %q", op)
	}
	if err == nil {
		return nil
	}
	if isWaitTimeout(ctx, err) {
		return &TimeoutError{Stack: name, Operation: op, After: maxWait, Err: err}
	}
	return fmt.Errorf("wait for stack %q %s: %w", name, op, err)
}

// isWaitTimeout separates the waiter's own deadline from a cancelled parent context.
func isWaitTimeout(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return strings.Contains(err.Error(), "exceeded max wait time") || errors.Is(err, context.DeadlineExceeded)
}

func (o Options) timeout(op Operation) time.Duration {
	switch op {
	case OperationCreate:
		return o.CreateTimeout
	case OperationUpdate:
		return o.UpdateTimeout
	default:
		return o.DeleteTimeout
	}
}
