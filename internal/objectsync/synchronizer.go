// Package objectsync mirrors local file trees into S3, uploading only objects whose
// content differs from the latest remote version.
package objectsync

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codex-k8s/stacksync/internal/logging"
)

// DefaultConcurrency bounds the number of files read and uploaded at the same time.
const DefaultConcurrency = 16

// Synchronizer writes local content to S3 using content fingerprints to skip unchanged objects.
type Synchronizer struct {
	api         API
	logger      *slog.Logger
	concurrency int
}

// NewSynchronizer constructs a Synchronizer. A concurrency below one selects DefaultConcurrency.
func NewSynchronizer(api API, logger *slog.Logger, concurrency int) *Synchronizer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Synchronizer{
		api:         api,
		logger:      logging.OrDiscard(logger),
		concurrency: concurrency,
	}
}

// ObjectRequest describes a single object write.
type ObjectRequest struct {
	Bucket string
	Key    string
	Body   []byte
}

// ObjectResult describes the remote object after a sync decision.
type ObjectResult struct {
	// Bucket is the target bucket.
	Bucket string
	// Key is the object key.
	Key string
	// VersionID is the version now holding the content; for skipped writes it is the prior version.
	VersionID string
	// Fingerprint is the content fingerprint.
	Fingerprint Fingerprint
	// Uploaded is false when the remote object already had the same content.
	Uploaded bool
}

// SyncObject ensures the object at req.Key holds req.Body, uploading only when the
// latest remote version has a different fingerprint.
func (s *Synchronizer) SyncObject(ctx context.Context, req ObjectRequest) (*ObjectResult, error) {
	if err := validateTarget(req.Bucket); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Key) == "" {
		return nil, fmt.Errorf("object key is empty")
	}
	idx, err := LoadIndex(ctx, s.api, req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}
	return s.syncObject(ctx, idx, req)
}

func (s *Synchronizer) syncObject(ctx context.Context, idx Index, req ObjectRequest) (*ObjectResult, error) {
	local := ComputeFingerprint(req.Body)

	if prev, ok := idx.Lookup(req.Key); ok && prev.Fingerprint == local {
		s.logger.Debug("object unchanged", "bucket", req.Bucket, "key", req.Key, "version", prev.VersionID)
		return &ObjectResult{
			Bucket:      req.Bucket,
			Key:         req.Key,
			VersionID:   prev.VersionID,
			Fingerprint: local,
		}, nil
	}

	out, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(req.Bucket),
		Key:           aws.String(req.Key),
		Body:          bytes.NewReader(req.Body),
		ContentLength: aws.Int64(int64(len(req.Body))),
		ContentType:   aws.String(ContentType(req.Key)),
		ContentMD5:    aws.String(ContentMD5(req.Body)),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %q to %q: %w", req.Key, req.Bucket, err)
	}

	actual := ParseETag(aws.ToString(out.ETag))
	if actual != local {
		return nil, &IntegrityError{
			Bucket:   req.Bucket,
			Key:      req.Key,
			Expected: local,
			Actual:   actual,
		}
	}

	// PutObject omits the id on unversioned buckets; listings report it as "null".
	version := aws.ToString(out.VersionId)
	if version == "" {
		version = NullVersion
	}
	s.logger.Debug("object uploaded", "bucket", req.Bucket, "key", req.Key, "version", version)
	return &ObjectResult{
		Bucket:      req.Bucket,
		Key:         req.Key,
		VersionID:   version,
		Fingerprint: local,
		Uploaded:    true,
	}, nil
}

// FileEvent is reported once per synchronized file.
type FileEvent struct {
	ObjectResult
	// Progress holds the run counters right after this file completed.
	Progress Snapshot
}

// FileHandler receives FileEvents. Calls are serialized.
type FileHandler func(FileEvent)

// DirRequest describes a recursive synchronization of a local tree.
type DirRequest struct {
	// Bucket is the target bucket.
	Bucket string
	// Prefix is the key of Root. Children of a directory are keyed Prefix/name;
	// an empty prefix keys them by name alone, and a file root by its base name.
	Prefix string
	// FS is the local filesystem.
	FS fs.FS
	// Root is the path inside FS to synchronize. Empty means ".".
	Root string
	// OnFile is called after each file completes. Optional.
	OnFile FileHandler
}

// Summary aggregates the results of a SyncDir run.
type Summary struct {
	// Objects lists every synchronized object ordered by key.
	Objects []ObjectResult
	// Uploaded counts objects that were written.
	Uploaded int
	// Skipped counts objects whose remote content already matched.
	Skipped int
	// Progress holds the final counters.
	Progress Snapshot
}

// SyncDir mirrors req.Root into req.Bucket. Every directory entry is synchronized
// concurrently and a directory completes only when its whole subtree has; file reads
// and uploads are bounded by the synchronizer's concurrency.
func (s *Synchronizer) SyncDir(ctx context.Context, req DirRequest) (*Summary, error) {
	if err := validateTarget(req.Bucket); err != nil {
		return nil, err
	}
	if req.FS == nil {
		return nil, fmt.Errorf("local filesystem is nil")
	}
	root := req.Root
	if root == "" {
		root = "."
	}

	idx, err := LoadIndex(ctx, s.api, req.Bucket, req.Prefix)
	if err != nil {
		return nil, err
	}

	run := &dirRun{
		sync:   s,
		req:    req,
		index:  idx,
		limit:  semaphore.NewWeighted(int64(s.concurrency)),
		report: req.OnFile,
	}
	if err := run.visit(ctx, root, req.Prefix); err != nil {
		return nil, err
	}

	sort.Slice(run.objects, func(i, j int) bool { return run.objects[i].Key < run.objects[j].Key })
	summary := &Summary{
		Objects:  run.objects,
		Progress: run.progress.Snapshot(),
	}
	for _, obj := range run.objects {
		if obj.Uploaded {
			summary.Uploaded++
		} else {
			summary.Skipped++
		}
	}
	return summary, nil
}

// dirRun holds the state shared by all tasks of one SyncDir call.
type dirRun struct {
	sync     *Synchronizer
	req      DirRequest
	index    Index
	limit    *semaphore.Weighted
	progress Progress

	mu      sync.Mutex
	objects []ObjectResult
	report  FileHandler
}

func (r *dirRun) visit(ctx context.Context, p, key string) error {
	info, err := fs.Stat(r.req.FS, p)
	if err != nil {
		return fmt.Errorf("stat %q: %w", p, err)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			r.sync.logger.Warn("skipping non-regular file", "path", p, "mode", info.Mode().String())
			return nil
		}
		if key == "" {
			key = path.Base(p)
		}
		return r.file(ctx, p, key)
	}

	entries, err := fs.ReadDir(r.req.FS, p)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", p, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		childPath := path.Join(p, entry.Name())
		childKey := entry.Name()
		if key != "" {
			childKey = path.Join(key, entry.Name())
		}
		g.Go(func() error {
			return r.visit(gctx, childPath, childKey)
		})
	}
	return g.Wait()
}

func (r *dirRun) file(ctx context.Context, p, key string) error {
	r.progress.discovered()

	if err := r.limit.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.limit.Release(1)

	body, err := fs.ReadFile(r.req.FS, p)
	if err != nil {
		return fmt.Errorf("read %q: %w", p, err)
	}

	res, err := r.sync.syncObject(ctx, r.index, ObjectRequest{
		Bucket: r.req.Bucket,
		Key:    key,
		Body:   body,
	})
	if err != nil {
		return err
	}
	r.progress.completed()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects = append(r.objects, *res)
	if r.report != nil {
		r.report(FileEvent{ObjectResult: *res, Progress: r.progress.Snapshot()})
	}
	return nil
}

func validateTarget(bucket string) error {
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("bucket name is empty")
	}
	return nil
}
