package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name string
	// Optional checks report failures but do not flip readiness.
	Optional bool
	Check    func(context.Context) error
}

type readyReport struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
	Degraded map[string]string `json:"degraded,omitempty"`
}

// MountHealth registers /healthz and /readyz on r.
func MountHealth(r chi.Router, checks ...ReadyCheck) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		report := runChecks(req.Context(), checks)
		code := http.StatusOK
		if len(report.Failures) > 0 {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}

func runChecks(ctx context.Context, checks []ReadyCheck) readyReport {
	report := readyReport{Status: "ok"}
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(checkCtx)
		cancel()
		if err == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = "dependency"
		}
		if check.Optional {
			if report.Degraded == nil {
				report.Degraded = map[string]string{}
			}
			report.Degraded[name] = err.Error()
			continue
		}
		if report.Failures == nil {
			report.Failures = map[string]string{}
		}
		report.Failures[name] = err.Error()
	}
	if len(report.Failures) > 0 {
		report.Status = "unavailable"
	} else if len(report.Degraded) > 0 {
		report.Status = "degraded"
	}
	return report
}
