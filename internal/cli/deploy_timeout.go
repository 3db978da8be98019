package cli

import (
	"fmt"
	"strings"
	"time"
)

// resolveWaitTimeout chooses the stack wait override. A value passed explicitly
// (flag or STACKSYNC_WAIT_TIMEOUT) replaces every per-operation timeout; otherwise
// zero is returned and the timeouts from stacksync.yaml apply.
func resolveWaitTimeout(explicit string, explicitSet bool) (time.Duration, error) {
	if !explicitSet {
		return 0, nil
	}
	v := strings.TrimSpace(explicit)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid wait timeout %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid wait timeout %q: must be positive", v)
	}
	return d, nil
}
