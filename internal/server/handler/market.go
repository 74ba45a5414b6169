package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// MarketHandler serves read-only views of the market replica.
type MarketHandler struct {
	markets domain.MarketStore
	logger  *slog.Logger
}

func NewMarketHandler(markets domain.MarketStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

type marketView struct {
	ID               string  `json:"id"`
	ChainAddress     string  `json:"chainAddress"`
	Creator          string  `json:"creator"`
	Question         string  `json:"question"`
	State            string  `json:"state"`
	ProposalLikes    int     `json:"proposalLikes"`
	ProposalDislikes int     `json:"proposalDislikes"`
	DisputeAgree     int     `json:"disputeAgree"`
	DisputeDisagree  int     `json:"disputeDisagree"`
	DisputeRound     int     `json:"disputeRound"`
	ProposedOutcome  *bool   `json:"proposedOutcome"`
	FinalOutcome     *bool   `json:"finalOutcome"`
	Paused           bool    `json:"paused"`
	Volume           float64 `json:"volume"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

func toMarketView(m domain.Market) marketView {
	return marketView{
		ID:               m.ID,
		ChainAddress:     m.ChainAddress,
		Creator:          m.Creator,
		Question:         m.Question,
		State:            string(m.State),
		ProposalLikes:    m.ProposalLikes,
		ProposalDislikes: m.ProposalDislikes,
		DisputeAgree:     m.DisputeAgree,
		DisputeDisagree:  m.DisputeDisagree,
		DisputeRound:     m.DisputeRound,
		ProposedOutcome:  m.ProposedOutcome,
		FinalOutcome:     m.FinalOutcome,
		Paused:           m.Paused,
		Volume:           m.Volume,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        m.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/markets?state=. The state filter is required; the
// replica is keyed by lifecycle state and unfiltered scans are not an ops
// need.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	state := domain.MarketState(r.URL.Query().Get("state"))
	if state == "" {
		writeError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}

	markets, err := h.markets.ListByState(r.Context(), state, parseListOpts(r))
	if err != nil {
		h.logger.Error("list markets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views, "count": len(views)})
}

// Get handles GET /api/markets/{id}, where id is the internal UUID or the
// on-chain address.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		m   domain.Market
		err error
	)
	if _, parseErr := uuid.Parse(id); parseErr == nil {
		m, err = h.markets.GetByID(r.Context(), id)
	} else {
		m, err = h.markets.GetByChainAddress(r.Context(), id)
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	if err != nil {
		h.logger.Error("get market failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toMarketView(m))
}
