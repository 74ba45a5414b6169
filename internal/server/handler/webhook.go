package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/ingest"
	"github.com/zmartlabs/zmart-sync/internal/metrics"
)

// WebhookHandler ingests webhook batches of confirmed transactions.
// Transactions in a batch are independent, so they are processed
// concurrently up to a bound; events inside one transaction stay in order.
type WebhookHandler struct {
	parser         *ingest.Parser
	router         *ingest.Router
	maxConcurrency int
	logger         *slog.Logger
}

func NewWebhookHandler(parser *ingest.Parser, router *ingest.Router, maxConcurrency int, logger *slog.Logger) *WebhookHandler {
	if maxConcurrency <= 0 {
		maxConcurrency = 16
	}
	return &WebhookHandler{
		parser:         parser,
		router:         router,
		maxConcurrency: maxConcurrency,
		logger:         logger.With(slog.String("handler", "webhook")),
	}
}

type webhookResponse struct {
	Success        bool  `json:"success"`
	Processed      int   `json:"processed"`
	Failed         int   `json:"failed"`
	ProcessingTime int64 `json:"processingTime"` // milliseconds
}

// Receive handles POST /webhooks/chain. A batch is acknowledged with 200
// even when individual events fail: the per-event outcome is accounted in
// the response body and the sender is not expected to retry partial
// failures (re-delivery of the whole batch is safe either way).
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var batch []domain.TransactionDescriptor
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		metrics.WebhookBatches.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "malformed batch")
		return
	}

	var (
		mu      sync.Mutex
		results []domain.WriteResult
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.maxConcurrency)
	for _, tx := range batch {
		g.Go(func() error {
			res := h.router.ProcessTransaction(ctx, h.parser, tx)
			mu.Lock()
			results = append(results, res...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	resp := webhookResponse{Success: true}
	for _, res := range results {
		metrics.ObserveWrite(string(res.EventType), res.Success, res.Duplicate, res.Duration.Seconds())
		if res.Success {
			resp.Processed++
		} else {
			resp.Failed++
		}
	}
	resp.ProcessingTime = time.Since(start).Milliseconds()

	metrics.WebhookBatches.WithLabelValues("ok").Inc()
	h.logger.Info("batch processed",
		slog.Int("transactions", len(batch)),
		slog.Int("processed", resp.Processed),
		slog.Int("failed", resp.Failed),
		slog.Int64("ms", resp.ProcessingTime),
	)
	writeJSON(w, http.StatusOK, resp)
}
