// Package handlers implements the HTTP API over the receipt pipeline,
// the ledger, the assistant and background jobs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
	"github.com/dvloznov/receipt-ledger/internal/assistant"
	"github.com/dvloznov/receipt-ledger/internal/jobs"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// DefaultMaxUpload bounds receipt image uploads.
const DefaultMaxUpload = 10 << 20

// ImageField is the multipart field holding the receipt image.
const ImageField = "receiptImage"

// ReceiptProcessor runs an image through the pipeline.
type ReceiptProcessor interface {
	Process(ctx context.Context, image []byte, contentType string) (*pipeline.Result, error)
}

// ReceiptDeleter removes a receipt and its index documents.
type ReceiptDeleter interface {
	Delete(ctx context.Context, backupID string) error
}

// Reporter builds spending summaries.
type Reporter interface {
	SummarizeBatch(ctx context.Context, views []receipt.View) (map[string]ledger.CurrencySummary, error)
	SummarizeAll(ctx context.Context) (map[string]ledger.CountrySummary, error)
}

// Answerer answers chat prompts.
type Answerer interface {
	Answer(ctx context.Context, conv assistant.Conversation, prompt string) (string, assistant.Conversation, error)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := StatusFor(err)
	log := logger.FromContext(r.Context())
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, messageFor(status, err))
}

// ReceiptsHandler handles receipt upload and deletion.
type ReceiptsHandler struct {
	processor ReceiptProcessor
	deleter   ReceiptDeleter
	maxUpload int64
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(processor ReceiptProcessor, deleter ReceiptDeleter) *ReceiptsHandler {
	return &ReceiptsHandler{processor: processor, deleter: deleter, maxUpload: DefaultMaxUpload}
}

// uploadResponse is the body of POST /api/receipts.
type uploadResponse struct {
	Filename   string       `json:"filename"`
	Receipt    receipt.View `json:"receipt"`
	Rows       int          `json:"rows"`
	Indexed    int          `json:"indexed"`
	IndexError string       `json:"index_error,omitempty"`
}

// Upload handles POST /api/receipts
func (h *ReceiptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	file, header, err := r.FormFile(ImageField)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Form field %q is required", ImageField))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	if len(image) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}

	res, err := h.processor.Process(r.Context(), image, contentType)
	if res == nil {
		writeErr(w, r, err, "Failed to process receipt")
		return
	}

	body := uploadResponse{Filename: res.BackupID, Receipt: res.View, Rows: res.Rows, Indexed: res.Indexed}
	if err != nil {
		// Persisted but not indexed; the receipt is safe and the index can be rebuilt.
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Str("backup_id", res.BackupID).Msg("Receipt saved without index")
		body.IndexError = err.Error()
		middleware.WriteJSON(w, http.StatusMultiStatus, body)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, body)
}

// Delete handles DELETE /api/receipts/{name}
func (h *ReceiptsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !receipt.IsBackupID(name) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid receipt name")
		return
	}
	if err := h.deleter.Delete(r.Context(), name); err != nil {
		writeErr(w, r, err, "Failed to delete receipt")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": name + " deleted"})
}

// ReportsHandler serves spending summaries.
type ReportsHandler struct {
	reporter Reporter
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(reporter Reporter) *ReportsHandler {
	return &ReportsHandler{reporter: reporter}
}

// reportItem accepts either a bare receipt view or one wrapped as {"data": view}.
type reportItem struct {
	receipt.View
	Data *receipt.View `json:"data"`
}

// BatchReport handles POST /api/reports/batch
func (h *ReportsHandler) BatchReport(w http.ResponseWriter, r *http.Request) {
	var items []reportItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	views := make([]receipt.View, 0, len(items))
	for _, it := range items {
		if it.Data != nil {
			views = append(views, *it.Data)
		} else {
			views = append(views, it.View)
		}
	}

	summary, err := h.reporter.SummarizeBatch(r.Context(), views)
	if err != nil {
		writeErr(w, r, err, "Failed to build batch report")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Ledger handles GET /api/ledger
func (h *ReportsHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reporter.SummarizeAll(r.Context())
	if err != nil {
		writeErr(w, r, err, "Failed to build ledger")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// LedgerXLSX handles GET /api/ledger.xlsx
func (h *ReportsHandler) LedgerXLSX(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reporter.SummarizeAll(r.Context())
	if err != nil {
		writeErr(w, r, err, "Failed to build ledger")
		return
	}
	data, err := ledger.BuildLedgerXLSX(summary)
	if err != nil {
		writeErr(w, r, err, "Failed to render ledger workbook")
		return
	}
	filename := "ledger_" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ChatHandler serves the receipt assistant.
type ChatHandler struct {
	assistant Answerer
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(a Answerer) *ChatHandler {
	return &ChatHandler{assistant: a}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
	assistant.Conversation
}

type chatResponse struct {
	Response string `json:"response"`
	assistant.Conversation
}

// Chat handles POST /api/chat. The client sends the history it received
// from the previous reply; the server keeps no session.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reply, conv, err := h.assistant.Answer(r.Context(), req.Conversation, req.Prompt)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyPrompt) {
			middleware.WriteError(w, http.StatusBadRequest, "Prompt is required")
			return
		}
		writeErr(w, r, err, "Failed to answer chat prompt")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, chatResponse{Response: reply, Conversation: conv})
}

// JobsHandler starts and reports background jobs.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher) *JobsHandler {
	return &JobsHandler{store: store, publisher: publisher}
}

// RebuildIndex handles POST /api/index/rebuild
func (h *JobsHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobTypeRebuildIndex)
}

// SyncNotion handles POST /api/notion/sync
func (h *JobsHandler) SyncNotion(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobTypeSyncNotion)
}

func (h *JobsHandler) enqueue(w http.ResponseWriter, r *http.Request, t jobs.JobType) {
	job := &jobs.Job{Type: t}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		writeErr(w, r, err, "Failed to enqueue job")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Str("job_id", job.JobID).Str("job_type", string(t)).Msg("Job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.JobStatusPending),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
