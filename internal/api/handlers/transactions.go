package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saveplus/saveplus/internal/anomaly"
	"github.com/saveplus/saveplus/internal/api/middleware"
	"github.com/saveplus/saveplus/internal/banksync"
	"github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/gcs"
	"github.com/saveplus/saveplus/internal/gcsuploader"
	"github.com/saveplus/saveplus/internal/voice"
)

// VoiceSource is recorded on transactions entered by voice.
const VoiceSource = voice.Source

// maxExportBytes bounds a bank-sync upload body.
const maxExportBytes = 32 << 20

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo        bigquery.TransactionRepository
	parser      *voice.Parser
	anomalyOpts anomaly.Options
	anomalyDays int
	now         func() time.Time
	log         zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler. anomalyDays is
// the default lookback for GET /api/anomalies.
func NewTransactionsHandler(repo bigquery.TransactionRepository, parser *voice.Parser, opts anomaly.Options, anomalyDays int, log zerolog.Logger) *TransactionsHandler {
	if parser == nil {
		parser = voice.NewParser()
	}
	if anomalyDays <= 0 {
		anomalyDays = 90
	}
	return &TransactionsHandler{
		repo:        repo,
		parser:      parser,
		anomalyOpts: opts,
		anomalyDays: anomalyDays,
		now:         time.Now,
		log:         log,
	}
}

// CreateFromVoice handles POST /api/transactions/voice
func (h *TransactionsHandler) CreateFromVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
		Save   bool   `json:"save"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	now := h.now()
	draft, err := h.parser.Parse(req.Text, now)
	if errors.Is(err, voice.ErrNoAmount) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Could not find an amount in the text")
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]interface{}{
		"draft": draft,
		"saved": false,
	}

	if req.Save {
		if draft.Merchant == "" {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "Could not find a merchant in the text")
			return
		}
		tx := draft.Transaction(uuid.NewString(), req.UserID)
		row := bigquery.NewTransactionRow(tx, "USD", VoiceSource, now.UTC())
		if err := h.repo.InsertTransactions(r.Context(), []*bigquery.TransactionRow{row}); err != nil {
			h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to save voice transaction")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
			return
		}
		resp["saved"] = true
		resp["transaction_id"] = tx.ID
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListAnomalies handles GET /api/anomalies?user_id=&days=
func (h *TransactionsHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	days := h.anomalyDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 730 {
			middleware.WriteError(w, http.StatusBadRequest, "days must be between 1 and 730")
			return
		}
		days = n
	}

	now := h.now()
	rows, err := h.repo.QueryUserTransactions(r.Context(), userID, now.AddDate(0, 0, -days), now)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	found := anomaly.Detect(bigquery.TransactionsToDomain(rows), h.anomalyOpts)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": found,
		"count":     len(found),
		"days":      days,
	})
}

// Uploader stores raw exports. gcsuploader.Service implements it.
type Uploader interface {
	Upload(ctx context.Context, bucketName, objectName string, r io.Reader) error
}

// BankSyncHandler accepts bank-sync exports pushed by the linking provider.
type BankSyncHandler struct {
	repo     bigquery.TransactionRepository
	uploader Uploader
	bucket   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewBankSyncHandler creates a new bank-sync handler. With no bucket the
// export is ingested without being archived.
func NewBankSyncHandler(repo bigquery.TransactionRepository, uploader Uploader, bucket string, log zerolog.Logger) *BankSyncHandler {
	return &BankSyncHandler{
		repo:     repo,
		uploader: uploader,
		bucket:   bucket,
		now:      time.Now,
		log:      log,
	}
}

// Upload handles POST /api/bank-sync?user_id=
func (h *BankSyncHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExportBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Export too large")
		return
	}

	ctx := r.Context()
	now := h.now()

	var uri string
	if h.bucket != "" && h.uploader != nil {
		object := gcsuploader.ExportObjectName(userID, uuid.NewString()+".json", now)
		if err := h.uploader.Upload(ctx, h.bucket, object, bytes.NewReader(data)); err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to archive export")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to store export")
			return
		}
		uri = gcs.URI(h.bucket, object)
	}

	res, err := banksync.Ingest(ctx, h.repo, data, userID, now.UTC())
	if errors.Is(err, banksync.ErrMalformedExport) {
		middleware.WriteError(w, http.StatusBadRequest, "Export is not a JSON array or JSON lines")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to ingest export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to ingest export")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gcs_uri":  uri,
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
		"pending":  res.Pending,
	})
}
