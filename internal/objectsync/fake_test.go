package objectsync

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeBucket is a versioned in-memory bucket implementing API.
type fakeBucket struct {
	mu       sync.Mutex
	versions map[string][]fakeVersion
	seq      int
	puts     []string
	lists    int
	pageSize int

	// unversioned keeps one "null" version per key and omits VersionId on PutObject.
	unversioned bool

	// etagFor overrides the acknowledged ETag of a PutObject call when set.
	etagFor func(key string, body []byte) string
	// putErr fails PutObject for the given key when set.
	putErr func(key string) error
}

type fakeVersion struct {
	id   string
	etag string
	body []byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{versions: make(map[string][]fakeVersion)}
}

func (f *fakeBucket) ListObjectVersions(_ context.Context, params *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	keys := make([]string, 0, len(f.versions))
	for k := range f.versions {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var all []types.ObjectVersion
	for _, k := range keys {
		vs := f.versions[k]
		for i := len(vs) - 1; i >= 0; i-- {
			all = append(all, types.ObjectVersion{
				Key:       aws.String(k),
				VersionId: aws.String(vs[i].id),
				ETag:      aws.String(vs[i].etag),
				IsLatest:  aws.Bool(i == len(vs)-1),
			})
		}
	}

	start := 0
	if marker := aws.ToString(params.KeyMarker); marker != "" {
		for i, v := range all {
			if aws.ToString(v.Key) == marker && aws.ToString(v.VersionId) == aws.ToString(params.VersionIdMarker) {
				start = i + 1
				break
			}
		}
	}
	end := len(all)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &s3.ListObjectVersionsOutput{
		Versions:    all[start:end],
		IsTruncated: aws.Bool(end < len(all)),
	}
	if end < len(all) {
		last := all[end-1]
		out.NextKeyMarker = last.Key
		out.NextVersionIdMarker = last.VersionId
	}
	return out, nil
}

func (f *fakeBucket) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		if err := f.putErr(key); err != nil {
			return nil, err
		}
	}

	f.seq++
	etag := fmt.Sprintf("%q", ComputeFingerprint(body))
	if f.etagFor != nil {
		etag = f.etagFor(key, body)
	}
	f.puts = append(f.puts, key)
	if f.unversioned {
		f.versions[key] = []fakeVersion{{id: NullVersion, etag: etag, body: body}}
		return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
	}
	v := fakeVersion{id: fmt.Sprintf("v%d", f.seq), etag: etag, body: body}
	f.versions[key] = append(f.versions[key], v)

	return &s3.PutObjectOutput{ETag: aws.String(etag), VersionId: aws.String(v.id)}, nil
}

func (f *fakeBucket) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.puts...)
	sort.Strings(out)
	return out
}

func (f *fakeBucket) resetPuts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = nil
}
