package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(a.Checks))
	for name := range a.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := a.Checks[name](ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": status}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	a.json(w, code, body)
}
