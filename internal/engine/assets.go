package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codex-k8s/stacksync/internal/config"
	"github.com/codex-k8s/stacksync/internal/objectsync"
)

// AssetFileHandler receives one event per synchronized file of the named asset.
type AssetFileHandler func(asset string, ev objectsync.FileEvent)

// SyncOptions selects and observes the assets to synchronize.
type SyncOptions struct {
	Only map[string]struct{}
	Skip map[string]struct{}
	// OnFile is optional.
	OnFile AssetFileHandler
}

// AssetResult is the outcome of one asset synchronization.
type AssetResult struct {
	Name    string
	Summary *objectsync.Summary
	Output  config.AssetOutput
}

// selectedAssets returns the assets enabled by filters and when-expressions, in declaration order.
func selectedAssets(cfg *config.DeployConfig, ctx config.TemplateContext, only, skip map[string]struct{}) ([]config.Asset, error) {
	var selected []config.Asset
	for _, a := range cfg.Assets {
		if !resourceIncluded(a.Name, only, skip) {
			continue
		}
		ok, err := evaluateWhen("asset", a.When, ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluate when for asset %q: %w", a.Name, err)
		}
		if !ok {
			continue
		}
		selected = append(selected, a)
	}
	return selected, nil
}

// SyncAssets mirrors every selected asset into its bucket. Assets run one after
// another; files inside an asset are uploaded concurrently.
func (e *Engine) SyncAssets(ctx context.Context, cfg *config.DeployConfig, tctx config.TemplateContext, opts SyncOptions) ([]AssetResult, error) {
	assets, err := selectedAssets(cfg, tctx, opts.Only, opts.Skip)
	if err != nil {
		return nil, err
	}

	results := make([]AssetResult, 0, len(assets))
	for _, a := range assets {
		res, err := e.syncAsset(ctx, a, tctx, opts.OnFile)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (e *Engine) syncAsset(ctx context.Context, a config.Asset, tctx config.TemplateContext, onFile AssetFileHandler) (*AssetResult, error) {
	local := tctx.Path(a.Path)
	info, err := os.Stat(local)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", a.Name, err)
	}

	req := objectsync.DirRequest{
		Bucket: a.Bucket,
		Prefix: a.Prefix,
		FS:     os.DirFS(local),
		Root:   ".",
	}
	if !info.IsDir() {
		req.FS = os.DirFS(filepath.Dir(local))
		req.Root = filepath.Base(local)
	}
	if onFile != nil {
		name := a.Name
		req.OnFile = func(ev objectsync.FileEvent) { onFile(name, ev) }
	}

	e.logger.Info("synchronizing asset", "asset", a.Name, "bucket", a.Bucket, "prefix", a.Prefix, "path", local)
	summary, err := objectsync.NewSynchronizer(e.objects, e.logger, a.Concurrency).SyncDir(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", a.Name, err)
	}
	e.logger.Info("asset synchronized", "asset", a.Name, "objects", len(summary.Objects), "uploaded", summary.Uploaded, "skipped", summary.Skipped)

	out := config.AssetOutput{
		Bucket:   a.Bucket,
		Prefix:   a.Prefix,
		Versions: make(map[string]string, len(summary.Objects)),
	}
	for _, obj := range summary.Objects {
		out.Versions[obj.Key] = obj.VersionID
	}
	return &AssetResult{Name: a.Name, Summary: summary, Output: out}, nil
}

// assetOutputs builds the template view of all enabled assets. Assets that were
// synchronized in this run use their results; the others are read from the
// current remote index. Assets disabled by a when-expression are left out.
func (e *Engine) assetOutputs(ctx context.Context, cfg *config.DeployConfig, tctx config.TemplateContext, synced []AssetResult) (map[string]config.AssetOutput, error) {
	outputs := make(map[string]config.AssetOutput, len(cfg.Assets))
	for _, res := range synced {
		outputs[res.Name] = res.Output
	}

	enabled, err := selectedAssets(cfg, tctx, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, a := range enabled {
		if _, ok := outputs[a.Name]; ok {
			continue
		}
		idx, err := objectsync.LoadIndex(ctx, e.objects, a.Bucket, a.Prefix)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Name, err)
		}
		out := config.AssetOutput{
			Bucket:   a.Bucket,
			Prefix:   a.Prefix,
			Versions: make(map[string]string, len(idx)),
		}
		for key, rec := range idx {
			out.Versions[key] = rec.VersionID
		}
		outputs[a.Name] = out
	}
	return outputs, nil
}
