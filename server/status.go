package server

import (
	"net/http"
	"strconv"
	"time"
)

// keyStatus is one pool entry in the status response. It carries the
// counters only; the key secret is never part of any response.
type keyStatus struct {
	QuotaUsed    int64     `json:"quota_used"`
	RequestsMade int64     `json:"requests_made"`
	DayKey       string    `json:"day_key,omitempty"`
	LastReset    time.Time `json:"last_reset"`
}

type statusResponse struct {
	ActiveKeyIndex int                  `json:"active_key_index"`
	Degraded       bool                 `json:"degraded"`
	Keys           map[string]keyStatus `json:"keys"`
}

// handleStatus reports per-key usage for operational visibility. It is
// a pure read: counters are reported as stored, without triggering a
// day reset.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary := s.ledger.Summary()

	keys := make(map[string]keyStatus, len(summary))
	for index, u := range summary {
		keys[strconv.Itoa(index)] = keyStatus{
			QuotaUsed:    u.QuotaUsed,
			RequestsMade: u.RequestsMade,
			DayKey:       u.DayKey,
			LastReset:    u.LastReset,
		}
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		ActiveKeyIndex: s.rotator.Active(),
		Degraded:       s.degraded || s.ledger.Degraded(),
		Keys:           keys,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
