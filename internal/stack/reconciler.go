package stack

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/google/uuid"

	"github.com/codex-k8s/stacksync/internal/logging"
)

const (
	// DefaultTimeout bounds every create, update and delete wait.
	DefaultTimeout = 300 * time.Second
	// DefaultWaitMinDelay and DefaultWaitMaxDelay bound the status polling of the waiters.
	DefaultWaitMinDelay = 5 * time.Second
	DefaultWaitMaxDelay = 30 * time.Second
)

// Descriptor declares the desired state of a stack.
type Descriptor struct {
	Name         string
	TemplateBody string
	Capabilities []types.Capability
	Parameters   map[string]string
	Tags         map[string]string
}

// Validate checks the fields required by every mutating call.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("stack name is empty")
	}
	if strings.TrimSpace(d.TemplateBody) == "" {
		return fmt.Errorf("stack %q: template body is empty", d.Name)
	}
	return nil
}

// Outputs maps stack output keys to values.
type Outputs map[string]string

// Action records what Reconcile did to the stack.
type Action string

const (
	ActionCreated   Action = "created"
	ActionRecreated Action = "recreated"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Result is returned by a successful Reconcile.
type Result struct {
	Name    string
	Action  Action
	Status  Status
	Outputs Outputs
}

// Options tunes a Reconciler. Zero values select the defaults.
type Options struct {
	CreateTimeout time.Duration
	UpdateTimeout time.Duration
	DeleteTimeout time.Duration
	// PollInterval is the event polling interval.
	PollInterval time.Duration
	// WaitMinDelay and WaitMaxDelay bound the delay between two status checks of a waiter.
	WaitMinDelay time.Duration
	WaitMaxDelay time.Duration

	Logger *slog.Logger
	// Now returns the current time; the start of an event cursor is taken from it.
	Now func() time.Time
	// Token returns a new client request token for each mutating call.
	Token func() string
}

func (o Options) withDefaults() Options {
	if o.CreateTimeout <= 0 {
		o.CreateTimeout = DefaultTimeout
	}
	if o.UpdateTimeout <= 0 {
		o.UpdateTimeout = DefaultTimeout
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.WaitMinDelay <= 0 {
		o.WaitMinDelay = DefaultWaitMinDelay
	}
	if o.WaitMaxDelay <= 0 {
		o.WaitMaxDelay = DefaultWaitMaxDelay
	}
	if o.WaitMaxDelay < o.WaitMinDelay {
		o.WaitMaxDelay = o.WaitMinDelay
	}
	o.Logger = logging.OrDiscard(o.Logger)
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Token == nil {
		o.Token = newRequestToken
	}
	return o
}

// newRequestToken returns an idempotency token; tokens must start with a letter.
func newRequestToken() string {
	return "stacksync-" + uuid.NewString()
}

// Reconciler drives a stack towards a Descriptor.
type Reconciler struct {
	api      API
	resolver *Resolver
	opts     Options
	logger   *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(api API, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		api:      api,
		resolver: NewResolver(api),
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Reconcile makes the stack match desc and returns its outputs. A stack left in
// ROLLBACK_COMPLETE is deleted and created again. Events emitted after the
// mutating call are passed to handler while the reconciler waits.
func (r *Reconciler) Reconcile(ctx context.Context, desc Descriptor, handler EventHandler) (*Result, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	status, err := r.resolver.Resolve(ctx, desc.Name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("stack status resolved", "stack", desc.Name, "status", status.String())

	recovered := false
	if status.Kind == StatusRollbackComplete {
		r.logger.Warn("stack is in ROLLBACK_COMPLETE, deleting it before create", "stack", desc.Name)
		if err := r.delete(ctx, desc.Name, nil); err != nil {
			return nil, err
		}
		if status, err = r.resolver.Resolve(ctx, desc.Name); err != nil {
			return nil, err
		}
		recovered = true
	}

	var action Action
	switch status.Kind {
	case StatusAbsent, StatusDeleteComplete:
		if err := r.create(ctx, desc, handler); err != nil {
			return nil, err
		}
		action = ActionCreated
		if recovered {
			action = ActionRecreated
		}
	case StatusRollbackComplete:
		return nil, fmt.Errorf("stack %q is still in %s after delete", desc.Name, status)
	case StatusCreateInProgress, StatusUpdateInProgress, StatusCreateComplete, StatusUpdateComplete, StatusOther:
		changed, err := r.update(ctx, desc, handler)
		if err != nil {
			return nil, err
		}
		action = ActionUnchanged
		if changed {
			action = ActionUpdated
		}
	default:
		return nil, fmt.Errorf("stack %q: unhandled status %s", desc.Name, status)
	}

	final, outputs, err := r.readOutputs(ctx, desc.Name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("stack reconciled", "stack", desc.Name, "action", string(action), "status", final.String(), "outputs", len(outputs))
	return &Result{Name: desc.Name, Action: action, Status: final, Outputs: outputs}, nil
}

func (r *Reconciler) create(ctx context.Context, desc Descriptor, handler EventHandler) error {
	start := r.opts.Now()
	_, err := r.api.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:          aws.String(desc.Name),
		TemplateBody:       aws.String(desc.TemplateBody),
		Capabilities:       desc.Capabilities,
		Parameters:         sdkParameters(desc.Parameters),
		Tags:               sdkTags(desc.Tags),
		ClientRequestToken: aws.String(r.opts.Token()),
	})
	if err != nil {
		return fmt.Errorf("create stack %q: %w", desc.Name, err)
	}
	r.logger.Info("stack create started", "stack", desc.Name)
	return r.watch(ctx, desc.Name, OperationCreate, start, handler)
}

// update reports false when the provider had nothing to change.
func (r *Reconciler) update(ctx context.Context, desc Descriptor, handler EventHandler) (bool, error) {
	start := r.opts.Now()
	_, err := r.api.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:          aws.String(desc.Name),
		TemplateBody:       aws.String(desc.TemplateBody),
		Capabilities:       desc.Capabilities,
		Parameters:         sdkParameters(desc.Parameters),
		Tags:               sdkTags(desc.Tags),
		ClientRequestToken: aws.String(r.opts.Token()),
	})
	if IsNoUpdatesError(err) {
		r.logger.Info("stack is up to date", "stack", desc.Name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update stack %q: %w", desc.Name, err)
	}
	r.logger.Info("stack update started", "stack", desc.Name)
	return true, r.watch(ctx, desc.Name, OperationUpdate, start, handler)
}

func (r *Reconciler) delete(ctx context.Context, name string, handler EventHandler) error {
	start := r.opts.Now()
	_, err := r.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName:          aws.String(name),
		ClientRequestToken: aws.String(r.opts.Token()),
	})
	if err != nil {
		return fmt.Errorf("delete stack %q: %w", name, err)
	}
	r.logger.Info("stack delete started", "stack", name)
	if handler == nil {
		return r.waitFor(ctx, name, OperationDelete)
	}
	return r.watch(ctx, name, OperationDelete, start, handler)
}

// watch streams events to handler until the wait for op returns. After a
// successful wait the remaining events are drained so output ends on the
// terminal event.
func (r *Reconciler) watch(ctx context.Context, name string, op Operation, start time.Time, handler EventHandler) error {
	if handler == nil {
		return r.waitFor(ctx, name, op)
	}
	bridge := StartEventBridge(ctx, r.api, name, start, r.opts.PollInterval, handler, r.logger)
	defer bridge.Stop()
	if err := r.waitFor(ctx, name, op); err != nil {
		return err
	}
	bridge.Drain(ctx)
	return nil
}

// readOutputs describes the stack and returns its outputs; it refuses to do so
// unless the stack rests in a terminal success state.
func (r *Reconciler) readOutputs(ctx context.Context, name string) (Status, Outputs, error) {
	st, err := r.describe(ctx, name)
	if err != nil {
		return Status{}, nil, err
	}
	status := ParseStatus(st.StackStatus)
	if !status.Succeeded() {
		return status, nil, &UnexpectedStatusError{Stack: name, Status: status}
	}
	return status, outputsFromSDK(st.Outputs), nil
}

func (r *Reconciler) describe(ctx context.Context, name string) (*types.Stack, error) {
	out, err := r.api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("describe stack %q: %w", name, err)
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("describe stack %q: no stack returned", name)
	}
	return &out.Stacks[0], nil
}

func outputsFromSDK(list []types.Output) Outputs {
	outputs := make(Outputs, len(list))
	for _, o := range list {
		key := aws.ToString(o.OutputKey)
		if key == "" {
			continue
		}
		outputs[key] = aws.ToString(o.OutputValue)
	}
	return outputs
}

func sdkParameters(params map[string]string) []types.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.Parameter, 0, len(params))
	for _, k := range sortedKeys(params) {
		out = append(out, types.Parameter{ParameterKey: aws.String(k), ParameterValue: aws.String(params[k])})
	}
	return out
}

func sdkTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
