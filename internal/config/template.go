package config

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/codex-k8s/stacksync/internal/env"
)

// TemplateContext is the data exposed to templates in stacksync.yaml and stack templates.
type TemplateContext struct {
	// Env is the selected environment name.
	Env string
	// Project is the project identifier.
	Project string
	// ProjectRoot is the directory holding stacksync.yaml.
	ProjectRoot string
	// Now is the timestamp captured for template rendering.
	Now time.Time
	// UserVars contains inline and var-file variables.
	UserVars env.Vars
	// EnvMap merges OS env, envFiles, var-files and inline variables.
	EnvMap env.Vars
	// Versions contains version strings from stacksync.yaml.
	Versions map[string]string
	// Assets holds the synchronized assets by name. It is nil until assets were synchronized.
	Assets map[string]AssetOutput
}

// AssetOutput describes the remote state of one synchronized asset.
type AssetOutput struct {
	Bucket string
	Prefix string
	// Versions maps object keys to their current version ids.
	Versions map[string]string
}

// Path resolves rel against the project root.
func (c TemplateContext) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) || c.ProjectRoot == "" {
		return rel
	}
	return filepath.Join(c.ProjectRoot, rel)
}

// WithAssets returns a copy of the context exposing assets to templates.
func (c TemplateContext) WithAssets(assets map[string]AssetOutput) TemplateContext {
	if assets == nil {
		assets = map[string]AssetOutput{}
	}
	c.Assets = assets
	return c
}

// RenderTemplate renders text content using the template context and helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the template functions available in stacksync.yaml and stack templates.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default":      funcDef,
		"toLower":      strings.ToLower,
		"toUpper":      strings.ToUpper,
		"slug":         funcSlug,
		"truncSHA":     funcTruncSHA,
		"envOr":        funcEnvOr(ctx.EnvMap),
		"ternary":      funcTernary,
		"now":          func() time.Time { return ctx.Now },
		"join":         funcJoin,
		"trimPrefix":   strings.TrimPrefix,
		"assetBucket":  funcAssetBucket(ctx.Assets),
		"assetKey":     funcAssetKey(ctx.Assets),
		"assetVersion": funcAssetVersion(ctx.Assets),
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcSlug normalizes a value into a lower-case dash-separated slug.
func funcSlug(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "-")
	v = strings.ReplaceAll(v, "_", "-")
	v = strings.ReplaceAll(v, "/", "-")
	return v
}

func funcTruncSHA(s string) string {
	const max = 12
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}

func funcTernary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

func funcJoin(values []string, sep string) string {
	return strings.Join(values, sep)
}

// The asset helpers are evaluated twice: while stacksync.yaml is loaded the
// assets are not synchronized yet, so they re-emit themselves and are resolved
// when the stack parameters and template are rendered after the sync.

func funcAssetBucket(assets map[string]AssetOutput) func(name string) (string, error) {
	return func(name string) (string, error) {
		if assets == nil {
			return fmt.Sprintf("{{ assetBucket %q }}", name), nil
		}
		out, ok := assets[name]
		if !ok {
			return "", fmt.Errorf("asset %q was not synchronized", name)
		}
		return out.Bucket, nil
	}
}

func funcAssetKey(assets map[string]AssetOutput) func(name, key string) (string, error) {
	return func(name, key string) (string, error) {
		if assets == nil {
			return fmt.Sprintf("{{ assetKey %q %q }}", name, key), nil
		}
		out, ok := assets[name]
		if !ok {
			return "", fmt.Errorf("asset %q was not synchronized", name)
		}
		if out.Prefix == "" {
			return key, nil
		}
		return path.Join(out.Prefix, key), nil
	}
}

func funcAssetVersion(assets map[string]AssetOutput) func(name, key string) (string, error) {
	return func(name, key string) (string, error) {
		if assets == nil {
			return fmt.Sprintf("{{ assetVersion %q %q }}", name, key), nil
		}
		out, ok := assets[name]
		if !ok {
			return "", fmt.Errorf("asset %q was not synchronized", name)
		}
		full := key
		if out.Prefix != "" {
			full = path.Join(out.Prefix, key)
		}
		version, ok := out.Versions[full]
		if !ok {
			return "", fmt.Errorf("asset %q has no object %q", name, full)
		}
		return version, nil
	}
}
