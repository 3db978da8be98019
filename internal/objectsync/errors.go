package objectsync

import (
	"errors"
	"fmt"
)

// IntegrityError reports that S3 acknowledged a write with a fingerprint that differs
// from the one computed locally. It is never retried.
type IntegrityError struct {
	// Bucket is the target bucket.
	Bucket string
	// Key is the object key that was written.
	Key string
	// Expected is the locally computed fingerprint.
	Expected Fingerprint
	// Actual is the fingerprint from the PutObject acknowledgment.
	Actual Fingerprint
}

func (e *IntegrityError) Error() string {
	if e == nil {
		return "integrity check failed"
	}
	return fmt.Sprintf("ETag mismatch for %q in bucket %q: expected %s, got %q", e.Key, e.Bucket, e.Expected, string(e.Actual))
}

// IsIntegrityError reports whether err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}
