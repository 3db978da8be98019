package objectsync

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client used by the synchronizer.
type API interface {
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// NullVersion is the version id S3 reports for objects in unversioned buckets.
const NullVersion = "null"

// Record is the latest remote version of one object.
type Record struct {
	// Key is the object key.
	Key string
	// Fingerprint is the normalized ETag of the object.
	Fingerprint Fingerprint
	// VersionID is the S3 version id (NullVersion for unversioned buckets).
	VersionID string
}

// Index is a point-in-time snapshot of the latest object versions in a bucket, keyed by object key.
type Index map[string]Record

// Lookup returns the record stored for key.
func (idx Index) Lookup(key string) (Record, bool) {
	rec, ok := idx[key]
	return rec, ok
}

// LoadIndex lists every current object version under prefix in bucket.
// Non-current versions and delete markers are not part of the index.
func LoadIndex(ctx context.Context, api API, bucket, prefix string) (Index, error) {
	idx := make(Index)
	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	for {
		out, err := api.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list object versions in %q: %w", bucket, err)
		}
		for _, v := range out.Versions {
			key := aws.ToString(v.Key)
			if key == "" || !aws.ToBool(v.IsLatest) {
				continue
			}
			idx[key] = Record{
				Key:         key,
				Fingerprint: ParseETag(aws.ToString(v.ETag)),
				VersionID:   aws.ToString(v.VersionId),
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.KeyMarker = out.NextKeyMarker
		input.VersionIdMarker = out.NextVersionIdMarker
	}

	return idx, nil
}
