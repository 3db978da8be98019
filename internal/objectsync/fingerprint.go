package objectsync

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Fingerprint is the content tag S3 reports as the ETag of a single-part upload:
// the lower-case hex MD5 of the object body, without surrounding quotes.
type Fingerprint string

// ComputeFingerprint returns the fingerprint of body.
func ComputeFingerprint(body []byte) Fingerprint {
	sum := md5.Sum(body)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// ParseETag normalizes an ETag as returned by S3 (quoted, possibly weak) into a Fingerprint.
func ParseETag(etag string) Fingerprint {
	v := strings.TrimSpace(etag)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	return Fingerprint(strings.ToLower(v))
}

// ContentMD5 returns the base64 digest S3 expects in the Content-MD5 header.
func ContentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}
