// Package ghoutput publishes values as GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Write appends values to the file named by GITHUB_OUTPUT. It does nothing
// outside GitHub Actions.
func Write(values map[string]string) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Encode(f, values)
}

// Encode writes values in the GITHUB_OUTPUT format, sorted by key. Multi-line
// values use a heredoc block with a random delimiter.
func Encode(w io.Writer, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		var err error
		if strings.ContainsAny(value, "\r\n") {
			delim := "ghadelimiter_" + uuid.NewString()
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", key, delim, value, delim)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
