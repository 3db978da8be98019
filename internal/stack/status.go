package stack

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// StatusKind classifies a remote stack status into the states the reconciler acts on.
type StatusKind int

const (
	// StatusAbsent means no stack with the name was ever listed.
	StatusAbsent StatusKind = iota
	// StatusRollbackComplete is a failed create that can only be deleted.
	StatusRollbackComplete
	// StatusDeleteComplete means the stack existed and was deleted.
	StatusDeleteComplete
	StatusCreateInProgress
	StatusUpdateInProgress
	StatusCreateComplete
	StatusUpdateComplete
	// StatusOther covers every remaining provider status.
	StatusOther
)

// String returns a stable lower-case name of the kind.
func (k StatusKind) String() string {
	switch k {
	case StatusAbsent:
		return "absent"
	case StatusRollbackComplete:
		return "rollback-complete"
	case StatusDeleteComplete:
		return "delete-complete"
	case StatusCreateInProgress:
		return "create-in-progress"
	case StatusUpdateInProgress:
		return "update-in-progress"
	case StatusCreateComplete:
		return "create-complete"
	case StatusUpdateComplete:
		return "update-complete"
	case StatusOther:
		return "other"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is a point-in-time snapshot of a stack's lifecycle state.
type Status struct {
	Kind StatusKind
	// Raw is the provider status; empty when Kind is StatusAbsent.
	Raw types.StackStatus
}

// ParseStatus maps a provider status onto a Status.
func ParseStatus(raw types.StackStatus) Status {
	st := Status{Raw: raw}
	switch raw {
	case "":
		st.Kind = StatusAbsent
	case types.StackStatusRollbackComplete:
		st.Kind = StatusRollbackComplete
	case types.StackStatusDeleteComplete:
		st.Kind = StatusDeleteComplete
	case types.StackStatusCreateInProgress:
		st.Kind = StatusCreateInProgress
	case types.StackStatusUpdateInProgress:
		st.Kind = StatusUpdateInProgress
	case types.StackStatusCreateComplete:
		st.Kind = StatusCreateComplete
	case types.StackStatusUpdateComplete:
		st.Kind = StatusUpdateComplete
	default:
		st.Kind = StatusOther
	}
	return st
}

// Succeeded reports whether the stack rests in a terminal success state.
func (s Status) Succeeded() bool {
	return s.Kind == StatusCreateComplete || s.Kind == StatusUpdateComplete
}

func (s Status) String() string {
	if s.Raw == "" {
		return s.Kind.String()
	}
	return string(s.Raw)
}

// Resolver looks up the current status of a stack by name.
type Resolver struct {
	api cloudformation.ListStacksAPIClient
}

// NewResolver constructs a Resolver.
func NewResolver(api cloudformation.ListStacksAPIClient) *Resolver {
	return &Resolver{api: api}
}

// Resolve lists every stack summary and returns the status of the named stack.
// Deleted stacks stay listed for a while under the same name, so a live summary
// wins over DELETE_COMPLETE ones.
func (r *Resolver) Resolve(ctx context.Context, name string) (Status, error) {
	var found types.StackStatus

	pager := cloudformation.NewListStacksPaginator(r.api, &cloudformation.ListStacksInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("list stacks: %w", err)
		}
		for _, summary := range page.StackSummaries {
			if aws.ToString(summary.StackName) != name {
				continue
			}
			if summary.StackStatus != types.StackStatusDeleteComplete {
				return ParseStatus(summary.StackStatus), nil
			}
			found = summary.StackStatus
		}
	}
	return ParseStatus(found), nil
}
