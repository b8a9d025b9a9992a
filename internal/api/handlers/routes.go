package handlers

import (
	"net/http"
)

// Routes groups the handlers served by the API.
type Routes struct {
	Receipts *ReceiptsHandler
	Reports  *ReportsHandler
	Chat     *ChatHandler
	Jobs     *JobsHandler
	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics http.Handler
}

// Mux registers every route on a new ServeMux.
func (rt Routes) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", Health)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	if rt.Receipts != nil {
		mux.HandleFunc("POST /api/receipts", rt.Receipts.Upload)
		mux.HandleFunc("DELETE /api/receipts/{name}", rt.Receipts.Delete)
	}
	if rt.Reports != nil {
		mux.HandleFunc("POST /api/reports/batch", rt.Reports.BatchReport)
		mux.HandleFunc("GET /api/ledger", rt.Reports.Ledger)
		mux.HandleFunc("GET /api/ledger.xlsx", rt.Reports.LedgerXLSX)
	}
	if rt.Chat != nil {
		mux.HandleFunc("POST /api/chat", rt.Chat.Chat)
	}
	if rt.Jobs != nil {
		mux.HandleFunc("POST /api/index/rebuild", rt.Jobs.RebuildIndex)
		mux.HandleFunc("POST /api/notion/sync", rt.Jobs.SyncNotion)
		mux.HandleFunc("GET /api/jobs", rt.Jobs.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", rt.Jobs.GetJob)
	}
	return mux
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
