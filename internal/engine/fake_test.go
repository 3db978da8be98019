package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/codex-k8s/stacksync/internal/objectsync"
)

// fakeStore keeps the latest version of every object per bucket.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]map[string]fakeObject
	seq     int
	puts    []string
}

type fakeObject struct {
	version string
	etag    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]map[string]fakeObject)}
}

func (f *fakeStore) ListObjectVersions(_ context.Context, params *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket := f.objects[aws.ToString(params.Bucket)]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectVersionsOutput{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := bucket[k]
		out.Versions = append(out.Versions, s3types.ObjectVersion{
			Key:       aws.String(k),
			VersionId: aws.String(obj.version),
			ETag:      aws.String(obj.etag),
			IsLatest:  aws.Bool(true),
		})
	}
	return out, nil
}

func (f *fakeStore) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(params.Bucket)
	key := aws.ToString(params.Key)
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string]fakeObject)
	}
	f.seq++
	obj := fakeObject{
		version: fmt.Sprintf("v%d", f.seq),
		etag:    fmt.Sprintf("%q", objectsync.ComputeFingerprint(body)),
	}
	f.objects[bucket][key] = obj
	f.puts = append(f.puts, bucket+"/"+key)
	return &s3.PutObjectOutput{ETag: aws.String(obj.etag), VersionId: aws.String(obj.version)}, nil
}

func (f *fakeStore) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.puts...)
	sort.Strings(out)
	return out
}

func (f *fakeStore) version(bucket, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[bucket][key].version
}

// fakeStacks models one stack whose mutations complete immediately.
type fakeStacks struct {
	mu sync.Mutex

	name     string
	status   cfntypes.StackStatus
	template string
	params   map[string]string
	outputs  []cfntypes.Output

	calls   []string
	creates []*cloudformation.CreateStackInput
	updates []*cloudformation.UpdateStackInput
}

func newFakeStacks(name string) *fakeStacks {
	return &fakeStacks{name: name}
}

func (f *fakeStacks) count(call string) int {
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

func (f *fakeStacks) ListStacks(_ context.Context, _ *cloudformation.ListStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "ListStacks")
	out := &cloudformation.ListStacksOutput{}
	if f.status != "" {
		out.StackSummaries = []cfntypes.StackSummary{{StackName: aws.String(f.name), StackStatus: f.status}}
	}
	return out, nil
}

func (f *fakeStacks) CreateStack(_ context.Context, params *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "CreateStack")
	f.creates = append(f.creates, params)
	f.status = cfntypes.StackStatusCreateComplete
	f.template = aws.ToString(params.TemplateBody)
	f.params = paramMap(params.Parameters)
	return &cloudformation.CreateStackOutput{StackId: aws.String("arn:stack/" + f.name)}, nil
}

func (f *fakeStacks) UpdateStack(_ context.Context, params *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "UpdateStack")
	f.updates = append(f.updates, params)
	template := aws.ToString(params.TemplateBody)
	next := paramMap(params.Parameters)
	if template == f.template && fmt.Sprint(next) == fmt.Sprint(f.params) {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}
	}
	f.template = template
	f.params = next
	f.status = cfntypes.StackStatusUpdateComplete
	return &cloudformation.UpdateStackOutput{StackId: aws.String("arn:stack/" + f.name)}, nil
}

func (f *fakeStacks) DeleteStack(_ context.Context, _ *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "DeleteStack")
	f.status = cfntypes.StackStatusDeleteComplete
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *fakeStacks) DescribeStacks(_ context.Context, _ *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "DescribeStacks")
	if f.status == "" || f.status == cfntypes.StackStatusDeleteComplete {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: fmt.Sprintf("Stack with id %s does not exist", f.name),
		}
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cfntypes.Stack{{
		StackName:    aws.String(f.name),
		StackStatus:  f.status,
		CreationTime: aws.Time(time.Unix(0, 0)),
		Outputs:      f.outputs,
	}}}, nil
}

func (f *fakeStacks) DescribeStackEvents(_ context.Context, _ *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	return &cloudformation.DescribeStackEventsOutput{}, nil
}

func paramMap(params []cfntypes.Parameter) map[string]string {
	out := make(map[string]string, len(params))
	for _, p := range params {
		out[aws.ToString(p.ParameterKey)] = aws.ToString(p.ParameterValue)
	}
	return out
}
