package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/stacksync/internal/env"
)

const sampleConfig = `project: shop
envFiles: [.env]
aws:
  region: eu-west-1
environments:
  dev:
    profile: dev
  prod:
    from: dev
    profile: prod
    region: us-east-1
assets:
  - name: site
    bucket: '{{ envOr "SITE_BUCKET" "shop-site" }}'
    prefix: '{{ .Env }}'
    path: web/dist
    concurrency: 8
    when: '{{ ne .Env "local" }}'
stack:
  name: '{{ .Project }}-{{ .Env }}'
  template: infra/stack.yaml
  capabilities: [CAPABILITY_IAM]
  parameters:
    Stage: '{{ .Env }}'
    IndexVersion: '{{ assetVersion "site" "index.html" }}'
  tags:
    project: '{{ .Project }}'
  timeouts:
    create: 10m
  eventPollInterval: 250ms
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestLoadDeployConfig(t *testing.T) {
	dir := writeProject(t, map[string]string{
		DefaultConfigPath: sampleConfig,
		".env":            "SITE_BUCKET=from-env-file\n",
	})

	cfg, ctx, err := LoadDeployConfig(filepath.Join(dir, DefaultConfigPath), LoadOptions{Env: "prod"})
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Project)
	assert.Equal(t, "prod", ctx.Env)
	assert.Equal(t, dir, ctx.ProjectRoot)
	assert.Nil(t, ctx.Assets)

	require.Len(t, cfg.Assets, 1)
	site := cfg.Assets[0]
	assert.Equal(t, "from-env-file", site.Bucket)
	assert.Equal(t, "prod", site.Prefix)
	assert.Equal(t, "true", site.When)
	assert.Equal(t, 8, site.Concurrency)

	assert.True(t, cfg.Stack.Enabled())
	assert.Equal(t, "shop-prod", cfg.Stack.Name)
	assert.Equal(t, "prod", cfg.Stack.Parameters["Stage"])
	assert.Equal(t, `{{ assetVersion "site" "index.html" }}`, cfg.Stack.Parameters["IndexVersion"])
	assert.Equal(t, "shop", cfg.Stack.Tags["project"])
	assert.Equal(t, []string{"CAPABILITY_IAM"}, cfg.Stack.Capabilities)
	assert.Equal(t, filepath.Join(dir, "infra/stack.yaml"), ctx.Path(cfg.Stack.Template))

	create, err := ParseDuration(cfg.Stack.Timeouts.Create)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, create)
}

func TestLoadDeployConfig_UserVarsOverrideEnvFiles(t *testing.T) {
	dir := writeProject(t, map[string]string{
		DefaultConfigPath: sampleConfig,
		".env":            "SITE_BUCKET=from-env-file\n",
		"vars.yaml":       "SITE_BUCKET: from-var-file\n",
	})
	path := filepath.Join(dir, DefaultConfigPath)

	cfg, _, err := LoadDeployConfig(path, LoadOptions{Env: "dev", VarFiles: []string{filepath.Join(dir, "vars.yaml")}})
	require.NoError(t, err)
	assert.Equal(t, "from-var-file", cfg.Assets[0].Bucket)

	cfg, ctx, err := LoadDeployConfig(path, LoadOptions{
		Env:      "dev",
		VarFiles: []string{filepath.Join(dir, "vars.yaml")},
		UserVars: env.Vars{"SITE_BUCKET": "inline"},
	})
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Assets[0].Bucket)
	assert.Equal(t, "inline", ctx.UserVars["SITE_BUCKET"])
}

func TestLoadDeployConfig_Errors(t *testing.T) {
	cases := map[string]string{
		"missing bucket":    "assets:\n  - name: a\n    path: x\n",
		"duplicate asset":   "assets:\n  - {name: a, bucket: b, path: x}\n  - {name: A, bucket: b, path: y}\n",
		"template w/o name": "stack:\n  template: t.yaml\n",
		"name w/o template": "stack:\n  name: app\n",
		"bad timeout":       "stack:\n  name: app\n  template: t.yaml\n  timeouts: {create: soon}\n",
		"bad template":      "project: '{{ .Nope'\n",
		"negative parallel": "assets:\n  - {name: a, bucket: b, path: x, concurrency: -1}\n",
		"missing env file":  "envFiles: [missing.env]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{DefaultConfigPath: content})
			_, _, err := LoadDeployConfig(filepath.Join(dir, DefaultConfigPath), LoadOptions{})
			require.Error(t, err)
		})
	}

	_, _, err := LoadDeployConfig("", LoadOptions{})
	require.Error(t, err)
	_, _, err = LoadDeployConfig(filepath.Join(t.TempDir(), "nope.yaml"), LoadOptions{})
	require.Error(t, err)
}

func TestResolveEnvironment(t *testing.T) {
	cfg := &DeployConfig{
		AWS: AWSConfig{Region: "eu-west-1", Endpoint: "http://localhost:4566"},
		Environments: map[string]Environment{
			"dev":   {AWSConfig: AWSConfig{Profile: "dev"}},
			"prod":  {From: "dev", AWSConfig: AWSConfig{Profile: "prod", Region: "us-east-1", RoleARN: "arn:aws:iam::1:role/deploy"}},
			"loopA": {From: "loopB"},
			"loopB": {From: "loopA"},
		},
	}

	prod, err := ResolveEnvironment(cfg, "prod")
	require.NoError(t, err)
	assert.Equal(t, AWSConfig{
		Region:   "us-east-1",
		Profile:  "prod",
		Endpoint: "http://localhost:4566",
		RoleARN:  "arn:aws:iam::1:role/deploy",
	}, prod)

	dev, err := ResolveEnvironment(cfg, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", dev.Profile)
	assert.Equal(t, "eu-west-1", dev.Region)

	base, err := ResolveEnvironment(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, cfg.AWS, base)

	_, err = ResolveEnvironment(cfg, "staging")
	require.Error(t, err)

	_, err = ResolveEnvironment(cfg, "loopA")
	require.ErrorContains(t, err, "cycle")

	_, err = ResolveEnvironment(nil, "dev")
	require.Error(t, err)

	bare, err := ResolveEnvironment(&DeployConfig{AWS: AWSConfig{Region: "x"}}, "anything")
	require.NoError(t, err)
	assert.Equal(t, "x", bare.Region)
}

func TestRenderTemplate_AssetHelpers(t *testing.T) {
	ctx := TemplateContext{Env: "dev", Project: "shop"}.WithAssets(map[string]AssetOutput{
		"site": {Bucket: "shop-site", Prefix: "dev", Versions: map[string]string{"dev/index.html": "v7"}},
		"code": {Bucket: "shop-code", Versions: map[string]string{"lambda.zip": "v2"}},
	})

	out, err := RenderTemplate("params", []byte(`{{ assetBucket "site" }}/{{ assetKey "site" "index.html" }}@{{ assetVersion "site" "index.html" }} {{ assetVersion "code" "lambda.zip" }} {{ (index .Assets "code").Bucket }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop-site/dev/index.html@v7 v2 shop-code", string(out))

	_, err = RenderTemplate("missing", []byte(`{{ assetVersion "site" "nope.html" }}`), ctx)
	require.Error(t, err)
	_, err = RenderTemplate("unknown", []byte(`{{ assetBucket "other" }}`), ctx)
	require.Error(t, err)
}

func TestRenderTemplate_SingleFileAssetUsesPrefixAsKey(t *testing.T) {
	ctx := TemplateContext{}.WithAssets(map[string]AssetOutput{
		"fn": {Bucket: "shop-code", Prefix: "code/v1.zip", Versions: map[string]string{"code/v1.zip": "v3"}},
	})

	out, err := RenderTemplate("file", []byte(`{{ assetKey "fn" "" }}@{{ assetVersion "fn" "" }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "code/v1.zip@v3", string(out))

	_, err = RenderTemplate("file", []byte(`{{ assetVersion "fn" "lambda.zip" }}`), ctx)
	require.ErrorContains(t, err, `"code/v1.zip/lambda.zip"`)
}

func TestRenderTemplate_DefersAssetHelpersBeforeSync(t *testing.T) {
	raw := []byte(`{{ assetVersion "site" "index.html" }} {{ assetBucket "site" }} {{ assetKey "site" "a/b.js" }}`)
	first, err := RenderTemplate("load", raw, TemplateContext{})
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(first))

	ctx := TemplateContext{}.WithAssets(map[string]AssetOutput{
		"site": {Bucket: "b", Versions: map[string]string{"index.html": "v1"}},
	})
	second, err := RenderTemplate("deploy", first, ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1 b a/b.js", string(second))
}

func TestRenderTemplate_Helpers(t *testing.T) {
	ctx := TemplateContext{
		Env:    "dev",
		EnvMap: env.Vars{"SET": "yes", "EMPTY": ""},
		Now:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out, err := RenderTemplate("helpers", []byte(`{{ envOr "SET" "no" }} {{ envOr "EMPTY" "fallback" }} {{ default "" "d" }} {{ slug "My App_v1" }} {{ truncSHA "0123456789abcdef" }} {{ ternary true "a" "b" }} {{ (now).Year }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes fallback d my-app-v1 0123456789ab a 2024", string(out))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDuration(" 300s ")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	_, err = ParseDuration("-1s")
	require.Error(t, err)
	_, err = ParseDuration("later")
	require.Error(t, err)
}
