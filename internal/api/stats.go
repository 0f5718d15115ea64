package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats. It combines the
// governor's live state with aggregate decision history.
type statsResponse struct {
	Running          int    `json:"running"`
	Paused           int    `json:"paused"`
	Ticks            uint64 `json:"ticks"`
	HeapBaseline     int64  `json:"heap_baseline"`
	PeakBaseline     int64  `json:"peak_baseline"`
	YellowLine       int64  `json:"yellow_line"`
	RedLine          int64  `json:"red_line"`
	TotalBudget      int64  `json:"total_budget"`
	FullGCOverYellow int64  `json:"full_gc_over_yellow"`
	ManagedUsed      int64  `json:"managed_used"`

	Decisions *decisionStats `json:"decisions,omitempty"`
}

type decisionStats struct {
	Total         int            `json:"total"`
	ByAction      map[string]int `json:"by_action"`
	ByReason      map[string]int `json:"by_reason"`
	LastTick      uint64         `json:"last_tick"`
	DistinctTasks int            `json:"distinct_tasks"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	gs := s.governor.Stats()
	resp := statsResponse{
		Running:          gs.Running,
		Paused:           gs.Paused,
		Ticks:            gs.Ticks,
		HeapBaseline:     gs.HeapBaseline,
		PeakBaseline:     gs.PeakBaseline,
		YellowLine:       gs.YellowLine,
		RedLine:          gs.RedLine,
		TotalBudget:      gs.TotalBudget,
		FullGCOverYellow: gs.FullGCOverYellow,
		ManagedUsed:      gs.ManagedUsed,
	}

	if s.store != nil {
		es, err := s.store.GetEventStats(r.Context())
		if err != nil {
			s.logger.Error("get event stats", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Decisions = &decisionStats{
			Total:         es.Total,
			ByAction:      es.CountByAction,
			ByReason:      es.CountByReason,
			LastTick:      es.LastTick,
			DistinctTasks: es.DistinctTasks,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
