package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter reports whether the eager datasets are loaded and how
// many datasets are resident.
type ReadinessReporter interface {
	Readiness() (ready bool, resident int)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status   string `json:"status"`
			Resident int    `json:"resident"`
		}
		ready, resident := rr.Readiness()
		out := resp{Status: "not_ready", Resident: resident}
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
