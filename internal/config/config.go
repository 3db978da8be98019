// Package config contains the loader and strongly typed model for stacksync.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/stacksync/internal/env"
)

// DefaultConfigPath is the project file looked up when no path is given.
const DefaultConfigPath = "stacksync.yaml"

// DeployConfig is the rendered content of stacksync.yaml.
type DeployConfig struct {
	// Project is the short project name available to templates.
	Project string `yaml:"project"`
	// EnvFiles lists dotenv files loaded before rendering.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Versions provides named version strings available in templates.
	Versions map[string]string `yaml:"versions,omitempty"`
	// AWS holds the default connection settings.
	AWS AWSConfig `yaml:"aws,omitempty"`
	// Environments overrides AWS settings per environment.
	Environments map[string]Environment `yaml:"environments,omitempty"`
	// Assets lists local directories mirrored into buckets.
	Assets []Asset `yaml:"assets,omitempty"`
	// Stack declares the CloudFormation stack. A stack without a name is skipped.
	Stack StackSpec `yaml:"stack,omitempty"`
}

// AWSConfig selects the account, region and endpoint used for remote calls.
type AWSConfig struct {
	Region  string `yaml:"region,omitempty"`
	Profile string `yaml:"profile,omitempty"`
	// Endpoint points every client at a custom endpoint (e.g. LocalStack).
	Endpoint string `yaml:"endpoint,omitempty"`
	// RoleARN is assumed through STS on top of the base credentials.
	RoleARN string `yaml:"roleArn,omitempty"`
}

// Environment overrides AWSConfig for one environment.
type Environment struct {
	// From references another environment to inherit from.
	From      string `yaml:"from,omitempty"`
	AWSConfig `yaml:",inline"`
}

// Asset describes one local tree synchronized into a bucket.
type Asset struct {
	// Name identifies the asset in filters and templates.
	Name string `yaml:"name"`
	// Bucket is the target bucket.
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to every object key of a directory path. For a
	// single-file path the prefix is the object key itself, and templates
	// reference it with an empty key: assetVersion "name" "".
	// Without a prefix a single file is keyed by its base name.
	Prefix string `yaml:"prefix,omitempty"`
	// Path is the local directory or file, relative to the project root.
	Path string `yaml:"path"`
	// Concurrency bounds parallel uploads; zero selects the default.
	Concurrency int `yaml:"concurrency,omitempty"`
	// When is a template expression that enables this asset.
	When string `yaml:"when,omitempty"`
}

// StackSpec declares the stack reconciled by deploy.
type StackSpec struct {
	Name string `yaml:"name,omitempty"`
	// Template is the template file relative to the project root.
	Template string `yaml:"template,omitempty"`
	// Render runs the template file through the stacksync template engine first.
	Render       bool              `yaml:"render,omitempty"`
	Capabilities []string          `yaml:"capabilities,omitempty"`
	Parameters   map[string]string `yaml:"parameters,omitempty"`
	Tags         map[string]string `yaml:"tags,omitempty"`
	Timeouts     StackTimeouts     `yaml:"timeouts,omitempty"`
	// EventPollInterval is a duration string (e.g. "500ms").
	EventPollInterval string `yaml:"eventPollInterval,omitempty"`
}

// StackTimeouts holds string-form durations for stack waits.
type StackTimeouts struct {
	Create string `yaml:"create,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`
}

// Enabled reports whether a stack is declared.
func (s StackSpec) Enabled() bool {
	return strings.TrimSpace(s.Name) != ""
}

// LoadOptions describes parameters that influence template rendering of stacksync.yaml.
type LoadOptions struct {
	// Env is the target environment name.
	Env string
	// UserVars are inline variables for template rendering.
	UserVars env.Vars
	// VarFiles lists additional var-files to load.
	VarFiles []string
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	Project  string            `yaml:"project"`
	EnvFiles []string          `yaml:"envFiles"`
	Versions map[string]string `yaml:"versions"`
}

// LoadAndRender reads stacksync.yaml, loads envFiles and user vars, and returns
// the rendered YAML together with the template context that was used.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if strings.TrimSpace(path) == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}
	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, zeroCtx, err
	}

	varFileVars := make(env.Vars)
	for _, vf := range opts.VarFiles {
		if strings.TrimSpace(vf) == "" {
			continue
		}
		vp, err := env.LoadVarFile(vf)
		if err != nil {
			return nil, zeroCtx, fmt.Errorf("load var-file %q: %w", vf, err)
		}
		varFileVars = env.Merge(varFileVars, vp)
	}

	ctx := TemplateContext{
		Env:         opts.Env,
		Project:     header.Project,
		ProjectRoot: baseDir,
		Now:         time.Now().UTC(),
		UserVars:    env.Merge(varFileVars, opts.UserVars),
		EnvMap:      env.Merge(env.FromOS(), envFileVars, varFileVars, opts.UserVars),
		Versions:    header.Versions,
	}

	rendered, err := RenderTemplate(filepath.Base(absPath), rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}
	return rendered, ctx, nil
}

// LoadDeployConfig loads, templates, parses and validates stacksync.yaml.
func LoadDeployConfig(path string, opts LoadOptions) (*DeployConfig, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	var cfg DeployConfig
	if err := yaml.Unmarshal(rendered, &cfg); err != nil {
		return nil, TemplateContext{}, fmt.Errorf("parse rendered %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}

	ctx.Versions = cfg.Versions
	return &cfg, ctx, nil
}

// Validate checks structural constraints that YAML decoding cannot express.
func (c *DeployConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Assets))
	for i, a := range c.Assets {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("assets[%d]: name is required", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("asset %q is declared more than once", name)
		}
		seen[key] = struct{}{}
		if strings.TrimSpace(a.Bucket) == "" {
			return fmt.Errorf("asset %q: bucket is required", name)
		}
		if strings.TrimSpace(a.Path) == "" {
			return fmt.Errorf("asset %q: path is required", name)
		}
		if a.Concurrency < 0 {
			return fmt.Errorf("asset %q: concurrency must not be negative", name)
		}
	}

	if c.Stack.Enabled() && strings.TrimSpace(c.Stack.Template) == "" {
		return fmt.Errorf("stack %q: template is required", c.Stack.Name)
	}
	if !c.Stack.Enabled() && strings.TrimSpace(c.Stack.Template) != "" {
		return fmt.Errorf("stack template %q is declared without a stack name", c.Stack.Template)
	}
	for field, value := range map[string]string{
		"timeouts.create":   c.Stack.Timeouts.Create,
		"timeouts.update":   c.Stack.Timeouts.Update,
		"timeouts.delete":   c.Stack.Timeouts.Delete,
		"eventPollInterval": c.Stack.EventPollInterval,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("stack.%s: %w", field, err)
		}
	}
	return nil
}

// ParseDuration parses a duration string; an empty string yields zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}

// ResolveEnvironment returns the effective AWS settings for the given environment,
// following optional "from" links and applying overrides on top of cfg.AWS.
// An empty name, or a config without environments, yields cfg.AWS.
func ResolveEnvironment(cfg *DeployConfig, name string) (AWSConfig, error) {
	if cfg == nil {
		return AWSConfig{}, fmt.Errorf("deploy config is nil")
	}
	if strings.TrimSpace(name) == "" || len(cfg.Environments) == 0 {
		return cfg.AWS, nil
	}

	visited := make(map[string]struct{})
	var resolve func(current string) (AWSConfig, error)

	resolve = func(current string) (AWSConfig, error) {
		if _, seen := visited[current]; seen {
			return AWSConfig{}, fmt.Errorf("environment inheritance cycle detected at %q", current)
		}
		visited[current] = struct{}{}

		envCfg, ok := cfg.Environments[current]
		if !ok {
			return AWSConfig{}, fmt.Errorf("environment %q not defined in %s", current, DefaultConfigPath)
		}

		base := cfg.AWS
		if envCfg.From != "" {
			var err error
			if base, err = resolve(envCfg.From); err != nil {
				return AWSConfig{}, err
			}
		}
		return overlay(base, envCfg.AWSConfig), nil
	}

	return resolve(name)
}

func overlay(base, over AWSConfig) AWSConfig {
	if over.Region != "" {
		base.Region = over.Region
	}
	if over.Profile != "" {
		base.Profile = over.Profile
	}
	if over.Endpoint != "" {
		base.Endpoint = over.Endpoint
	}
	if over.RoleARN != "" {
		base.RoleARN = over.RoleARN
	}
	return base
}
