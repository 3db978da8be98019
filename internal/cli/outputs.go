package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/codex-k8s/stacksync/internal/engine"
	"github.com/codex-k8s/stacksync/internal/ghoutput"
	"github.com/codex-k8s/stacksync/internal/stack"
)

// deployOutputs flattens a deploy result into step outputs. Stack outputs keep
// their own keys; stack metadata and asset counters use a stacksync_ prefix.
func deployOutputs(res *engine.DeployResult) map[string]string {
	values := make(map[string]string)
	if res == nil {
		return values
	}
	uploaded, skipped := 0, 0
	for _, a := range res.Assets {
		uploaded += a.Summary.Uploaded
		skipped += a.Summary.Skipped
	}
	values["stacksync_uploaded"] = fmt.Sprint(uploaded)
	values["stacksync_skipped"] = fmt.Sprint(skipped)

	if res.Stack != nil {
		values["stacksync_stack_name"] = res.Stack.Name
		values["stacksync_stack_action"] = string(res.Stack.Action)
		values["stacksync_stack_status"] = res.Stack.Status.String()
		for k, v := range res.Stack.Outputs {
			values[k] = v
		}
	}
	return values
}

// writeGitHubOutputs publishes the deploy result as GitHub Actions step outputs.
func writeGitHubOutputs(res *engine.DeployResult) error {
	return ghoutput.Write(deployOutputs(res))
}

// printOutputs writes stack outputs as aligned key = value lines.
func printOutputs(w io.Writer, outputs stack.Outputs) error {
	if len(outputs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(outputs))
	width := 0
	for k := range outputs {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s%s = %s\n", k, strings.Repeat(" ", width-len(k)), outputs[k]); err != nil {
			return err
		}
	}
	return nil
}
