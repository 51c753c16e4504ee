package runstatus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/ALU-panda/production-tests/internal/monitoring"
)

// AttachDebugRoutes mounts the run status under /debug/ on mux. tsweb only
// serves these routes to loopback and tailnet clients.
func (s *Status) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Run ID", func() any { return s.Snapshot().RunID })
	debug.KVFunc("Current trial", func() any {
		snap := s.Snapshot()
		if snap.Unit == "" {
			return "none"
		}
		return fmt.Sprintf("%s %s", snap.Unit, snap.Expected)
	})
	debug.KVFunc("Mismatches", func() any {
		snap := s.Snapshot()
		return fmt.Sprintf("%d / %d", snap.Mismatches, snap.Budget)
	})
	debug.KVFunc("Last verdict", func() any { return s.Snapshot().LastVerdict })
	debug.KVFunc("Trials passed", func() any { return s.Snapshot().Passed })
	debug.KVFunc("Trials failed", func() any { return s.Snapshot().Failed })

	debug.Handle("gesture-status", "current gesture test status as JSON", http.HandlerFunc(s.serveJSON))
}

func (s *Status) serveJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Snapshot())
}

// writeJSON encodes v in full before writing, so an encoding failure can still
// be reported with a clean 500.
func writeJSON(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("failed to write json response: %v", err)
	}
}
