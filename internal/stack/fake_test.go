package stack

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

// fakeCloudFormation models a single named stack.
type fakeCloudFormation struct {
	mu sync.Mutex

	name    string
	status  types.StackStatus
	deleted int
	outputs []types.Output
	events  []types.StackEvent

	// createResult and updateResult are the statuses reached after the calls.
	createResult types.StackStatus
	updateResult types.StackStatus
	// pendingDescribes makes DescribeStacks report an in-progress status this many times after a mutation.
	pendingDescribes int
	pendingStatus    types.StackStatus

	createErr error
	updateErr error
	eventsErr func(call int) error

	listPageSize int

	calls        []string
	tokens       []string
	createInputs []*cloudformation.CreateStackInput
	eventCalls   int
	describes    int
}

func newFakeCloudFormation(name string) *fakeCloudFormation {
	return &fakeCloudFormation{
		name:         name,
		createResult: types.StackStatusCreateComplete,
		updateResult: types.StackStatusUpdateComplete,
	}
}

func (f *fakeCloudFormation) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeCloudFormation) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeCloudFormation) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCloudFormation) ListStacks(_ context.Context, params *cloudformation.ListStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListStacks")

	summaries := []types.StackSummary{{StackName: aws.String("unrelated"), StackStatus: types.StackStatusCreateComplete}}
	for i := 0; i < f.deleted; i++ {
		summaries = append(summaries, types.StackSummary{StackName: aws.String(f.name), StackStatus: types.StackStatusDeleteComplete})
	}
	if f.status != "" {
		summaries = append(summaries, types.StackSummary{StackName: aws.String(f.name), StackStatus: f.status})
	}

	start := 0
	if tok := aws.ToString(params.NextToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := len(summaries)
	if f.listPageSize > 0 && start+f.listPageSize < end {
		end = start + f.listPageSize
	}
	out := &cloudformation.ListStacksOutput{StackSummaries: summaries[start:end]}
	if end < len(summaries) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeCloudFormation) CreateStack(_ context.Context, params *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateStack")
	f.tokens = append(f.tokens, aws.ToString(params.ClientRequestToken))
	f.createInputs = append(f.createInputs, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.status = f.createResult
	f.pendingStatus = types.StackStatusCreateInProgress
	return &cloudformation.CreateStackOutput{StackId: aws.String("arn:stack/" + f.name)}, nil
}

func (f *fakeCloudFormation) UpdateStack(_ context.Context, params *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateStack")
	f.tokens = append(f.tokens, aws.ToString(params.ClientRequestToken))
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.status = f.updateResult
	f.pendingStatus = types.StackStatusUpdateInProgress
	return &cloudformation.UpdateStackOutput{StackId: aws.String("arn:stack/" + f.name)}, nil
}

func (f *fakeCloudFormation) DeleteStack(_ context.Context, params *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteStack")
	f.tokens = append(f.tokens, aws.ToString(params.ClientRequestToken))
	if f.status != "" {
		f.deleted++
		f.status = ""
	}
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *fakeCloudFormation) DescribeStacks(_ context.Context, _ *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DescribeStacks")
	f.describes++

	if f.status == "" {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: fmt.Sprintf("Stack with id %s does not exist", f.name),
		}
	}
	status := f.status
	if f.pendingDescribes > 0 {
		f.pendingDescribes--
		status = f.pendingStatus
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{{
		StackName:    aws.String(f.name),
		StackStatus:  status,
		CreationTime: aws.Time(time.Unix(0, 0)),
		Outputs:      f.outputs,
	}}}, nil
}

func (f *fakeCloudFormation) DescribeStackEvents(_ context.Context, _ *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	if f.eventsErr != nil {
		if err := f.eventsErr(f.eventCalls); err != nil {
			return nil, err
		}
	}
	return &cloudformation.DescribeStackEventsOutput{StackEvents: append([]types.StackEvent(nil), f.events...)}, nil
}

func stackEvent(id string, ts time.Time, status types.ResourceStatus) types.StackEvent {
	return types.StackEvent{
		EventId:           aws.String(id),
		StackName:         aws.String("app"),
		StackId:           aws.String("arn:stack/app"),
		Timestamp:         aws.Time(ts),
		LogicalResourceId: aws.String("Bucket"),
		ResourceType:      aws.String("AWS::S3::Bucket"),
		ResourceStatus:    status,
	}
}

// fastOptions keeps waiter and poll delays short for tests.
func fastOptions(now time.Time) Options {
	return Options{
		PollInterval:  time.Millisecond,
		WaitMinDelay:  time.Millisecond,
		WaitMaxDelay:  2 * time.Millisecond,
		CreateTimeout: 5 * time.Second,
		UpdateTimeout: 5 * time.Second,
		DeleteTimeout: 5 * time.Second,
		Now:           func() time.Time { return now },
	}
}
