package cli

import (
	"log/slog"

	"github.com/codex-k8s/stacksync/internal/engine"
	"github.com/codex-k8s/stacksync/internal/objectsync"
	"github.com/codex-k8s/stacksync/internal/stack"
)

// stackEventLogger renders stack events as log lines.
func stackEventLogger(logger *slog.Logger) stack.EventHandler {
	return func(ev stack.Event) {
		attrs := []any{
			"resource", ev.LogicalResourceID,
			"type", ev.ResourceType,
			"status", ev.ResourceStatus,
			"time", ev.Timestamp.Format("15:04:05"),
		}
		if ev.Reason != "" {
			attrs = append(attrs, "reason", ev.Reason)
		}
		logger.Info("stack event", attrs...)
	}
}

// assetFileLogger reports uploads at info level and unchanged objects at debug level.
func assetFileLogger(logger *slog.Logger) engine.AssetFileHandler {
	return func(asset string, ev objectsync.FileEvent) {
		attrs := []any{
			"asset", asset,
			"key", ev.Key,
			"version", ev.VersionID,
			"done", ev.Progress.Done,
			"total", ev.Progress.Total,
		}
		if ev.Uploaded {
			logger.Info("object uploaded", attrs...)
			return
		}
		logger.Debug("object unchanged", attrs...)
	}
}
