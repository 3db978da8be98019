// Package stack reconciles a CloudFormation stack against a declared template:
// it creates, updates or recovers the stack, streams its events while waiting and
// reads back the declared outputs.
package stack

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
)

// EventsAPI is the subset of the CloudFormation API polled by EventBridge.
type EventsAPI interface {
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
}

// API is the subset of the CloudFormation API used by the Reconciler.
type API interface {
	EventsAPI
	cloudformation.ListStacksAPIClient
	cloudformation.DescribeStacksAPIClient

	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

var (
	_ API       = (*cloudformation.Client)(nil)
	_ EventsAPI = (*cloudformation.Client)(nil)
)
