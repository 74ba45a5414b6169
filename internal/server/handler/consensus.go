package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zmartlabs/zmart-sync/internal/consensus"
)

// ConsensusHandler exposes the aggregation scheduler to operators.
type ConsensusHandler struct {
	scheduler *consensus.Scheduler
	logger    *slog.Logger
}

func NewConsensusHandler(scheduler *consensus.Scheduler, logger *slog.Logger) *ConsensusHandler {
	return &ConsensusHandler{
		scheduler: scheduler,
		logger:    logger.With(slog.String("handler", "consensus")),
	}
}

type triggerRequest struct {
	Aggregator string `json:"aggregator"` // "proposal", "dispute" or "all"
}

// Trigger handles POST /api/consensus/trigger. The pass runs synchronously
// so the operator sees the outcome in the status endpoint right after.
func (h *ConsensusHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	// An empty body means "all"; only a malformed one is rejected.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed trigger request")
		return
	}

	h.logger.Info("manual aggregation trigger", slog.String("aggregator", req.Aggregator))
	if err := h.scheduler.RunNow(r.Context(), req.Aggregator); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  h.scheduler.Status(),
	})
}

// Status handles GET /api/consensus/status.
func (h *ConsensusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}
