package engine

import (
	"strings"

	"github.com/codex-k8s/stacksync/internal/config"
)

// resourceIncluded applies only/skip name sets. Names are matched case-insensitively.
func resourceIncluded(name string, only, skip map[string]struct{}) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	if len(only) > 0 {
		if _, ok := only[key]; !ok {
			return false
		}
	}
	if _, ok := skip[key]; ok {
		return false
	}
	return true
}

// evaluateWhen renders a when-expression. An empty expression or an empty
// rendering enables the resource; "false", "0" and "no" disable it.
func evaluateWhen(kind, expr string, ctx config.TemplateContext) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	rendered, err := config.RenderTemplate(kind+"-when", []byte(expr), ctx)
	if err != nil {
		return false, err
	}
	s := strings.TrimSpace(string(rendered))
	if s == "" {
		return true, nil
	}
	ls := strings.ToLower(s)
	if ls == "false" || ls == "0" || ls == "no" {
		return false, nil
	}
	return true, nil
}
