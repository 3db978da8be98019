// Package engine contains the high-level orchestration of asset synchronization
// and stack reconciliation for one environment.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/codex-k8s/stacksync/internal/config"
	"github.com/codex-k8s/stacksync/internal/logging"
	"github.com/codex-k8s/stacksync/internal/objectsync"
	"github.com/codex-k8s/stacksync/internal/stack"
)

// Engine coordinates the object store and the stack control plane.
type Engine struct {
	objects objectsync.API
	stacks  stack.API
	logger  *slog.Logger
}

// NewEngine constructs an Engine. Either API may be nil when the caller only
// uses operations that do not need it.
func NewEngine(objects objectsync.API, stacks stack.API, logger *slog.Logger) *Engine {
	return &Engine{
		objects: objects,
		stacks:  stacks,
		logger:  logging.OrDiscard(logger),
	}
}

// DeployOptions controls a deploy run.
type DeployOptions struct {
	Assets SyncOptions
	// SkipAssets disables asset synchronization; templates still see the current remote versions.
	SkipAssets bool
	// SkipStack disables stack reconciliation.
	SkipStack bool
	// WaitTimeout replaces the configured create, update and delete timeouts when positive.
	WaitTimeout time.Duration
	// OnEvent receives stack events while the deploy waits. Optional.
	OnEvent stack.EventHandler
}

// DeployResult is the outcome of a deploy run.
type DeployResult struct {
	Assets []AssetResult
	// Stack is nil when no stack was reconciled.
	Stack *stack.Result
}

// Deploy synchronizes the selected assets and then reconciles the stack with
// the asset versions available to its parameters, tags and template.
func (e *Engine) Deploy(ctx context.Context, cfg *config.DeployConfig, tctx config.TemplateContext, opts DeployOptions) (*DeployResult, error) {
	result := &DeployResult{}

	if !opts.SkipAssets {
		synced, err := e.SyncAssets(ctx, cfg, tctx, opts.Assets)
		if err != nil {
			return nil, err
		}
		result.Assets = synced
	}

	if opts.SkipStack || !cfg.Stack.Enabled() {
		return result, nil
	}

	outputs, err := e.assetOutputs(ctx, cfg, tctx, result.Assets)
	if err != nil {
		return nil, err
	}
	tctx = tctx.WithAssets(outputs)

	desc, err := BuildDescriptor(cfg, tctx)
	if err != nil {
		return nil, err
	}
	stackOpts, err := e.stackOptions(cfg.Stack, opts.WaitTimeout)
	if err != nil {
		return nil, err
	}

	e.logger.Info("reconciling stack", "stack", desc.Name)
	res, err := stack.NewReconciler(e.stacks, stackOpts).Reconcile(ctx, desc, opts.OnEvent)
	if err != nil {
		return nil, err
	}
	e.logger.Info("stack reconciled", "stack", res.Name, "action", res.Action, "status", res.Status.String())
	result.Stack = res
	return result, nil
}

// AssetContext exposes the current remote versions of every enabled asset to templates.
func (e *Engine) AssetContext(ctx context.Context, cfg *config.DeployConfig, tctx config.TemplateContext) (config.TemplateContext, error) {
	outputs, err := e.assetOutputs(ctx, cfg, tctx, nil)
	if err != nil {
		return config.TemplateContext{}, err
	}
	return tctx.WithAssets(outputs), nil
}

// Status describes the configured stack.
func (e *Engine) Status(ctx context.Context, cfg *config.DeployConfig) (*stack.Description, error) {
	if !cfg.Stack.Enabled() {
		return nil, fmt.Errorf("no stack is declared in %s", config.DefaultConfigPath)
	}
	stackOpts, err := e.stackOptions(cfg.Stack, 0)
	if err != nil {
		return nil, err
	}
	return stack.NewReconciler(e.stacks, stackOpts).Describe(ctx, cfg.Stack.Name)
}

// Destroy deletes the configured stack and waits for the deletion. It reports
// whether a stack existed.
func (e *Engine) Destroy(ctx context.Context, cfg *config.DeployConfig, waitTimeout time.Duration, onEvent stack.EventHandler) (bool, error) {
	if !cfg.Stack.Enabled() {
		return false, fmt.Errorf("no stack is declared in %s", config.DefaultConfigPath)
	}
	stackOpts, err := e.stackOptions(cfg.Stack, waitTimeout)
	if err != nil {
		return false, err
	}
	return stack.NewReconciler(e.stacks, stackOpts).Destroy(ctx, cfg.Stack.Name, onEvent)
}

func (e *Engine) stackOptions(spec config.StackSpec, waitTimeout time.Duration) (stack.Options, error) {
	opts, err := StackOptions(spec)
	if err != nil {
		return stack.Options{}, err
	}
	if waitTimeout > 0 {
		opts.CreateTimeout = waitTimeout
		opts.UpdateTimeout = waitTimeout
		opts.DeleteTimeout = waitTimeout
	}
	opts.Logger = e.logger
	return opts, nil
}

// StackOptions converts the timeouts and poll interval of spec. Unset values stay zero
// so the reconciler defaults apply.
func StackOptions(spec config.StackSpec) (stack.Options, error) {
	var opts stack.Options
	for _, f := range []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"timeouts.create", spec.Timeouts.Create, &opts.CreateTimeout},
		{"timeouts.update", spec.Timeouts.Update, &opts.UpdateTimeout},
		{"timeouts.delete", spec.Timeouts.Delete, &opts.DeleteTimeout},
		{"eventPollInterval", spec.EventPollInterval, &opts.PollInterval},
	} {
		d, err := config.ParseDuration(f.value)
		if err != nil {
			return stack.Options{}, fmt.Errorf("stack.%s: %w", f.field, err)
		}
		*f.dst = d
	}
	return opts, nil
}

// RenderStackTemplate reads the stack template and, when the stack opts in to
// rendering, executes it with ctx.
func RenderStackTemplate(cfg *config.DeployConfig, ctx config.TemplateContext) ([]byte, error) {
	if !cfg.Stack.Enabled() {
		return nil, fmt.Errorf("no stack is declared in %s", config.DefaultConfigPath)
	}
	path := ctx.Path(cfg.Stack.Template)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stack template %q: %w", path, err)
	}
	if !cfg.Stack.Render {
		return raw, nil
	}
	return config.RenderTemplate(path, raw, ctx)
}

// BuildDescriptor assembles the stack descriptor. Parameters and tags are
// rendered again so that asset helpers deferred at load time resolve against ctx.
func BuildDescriptor(cfg *config.DeployConfig, ctx config.TemplateContext) (stack.Descriptor, error) {
	body, err := RenderStackTemplate(cfg, ctx)
	if err != nil {
		return stack.Descriptor{}, err
	}
	params, err := renderValues("parameter", cfg.Stack.Parameters, ctx)
	if err != nil {
		return stack.Descriptor{}, err
	}
	tags, err := renderValues("tag", cfg.Stack.Tags, ctx)
	if err != nil {
		return stack.Descriptor{}, err
	}

	desc := stack.Descriptor{
		Name:         cfg.Stack.Name,
		TemplateBody: string(body),
		Parameters:   params,
		Tags:         tags,
	}
	for _, c := range cfg.Stack.Capabilities {
		if c = strings.TrimSpace(c); c != "" {
			desc.Capabilities = append(desc.Capabilities, types.Capability(c))
		}
	}
	if err := desc.Validate(); err != nil {
		return stack.Descriptor{}, err
	}
	return desc, nil
}

func renderValues(kind string, values map[string]string, ctx config.TemplateContext) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		rendered, err := config.RenderTemplate(kind+"-"+k, []byte(v), ctx)
		if err != nil {
			return nil, fmt.Errorf("render stack %s %q: %w", kind, k, err)
		}
		out[k] = string(rendered)
	}
	return out, nil
}
