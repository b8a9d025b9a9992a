package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/receipt-ledger/internal/archive"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

// SyncReport counts what a sync did, or would do in dry-run mode.
type SyncReport struct {
	Created  int `json:"created"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// SyncReceipts mirrors every archived row into the Notion database.
// Rows already present (by record id) are skipped, pages for rows no
// longer in the archive are archived. A page whose backup artifact is still
// listed but could not be loaded is left alone, so a transiently unreadable
// artifact never empties Notion. Individual page failures are logged and
// counted; only reading the archive or querying Notion fails the sync.
func SyncReceipts(ctx context.Context, a *archive.Archive, notionClient NotionService, notionDBID string, dryRun bool) (*SyncReport, error) {
	log := logger.FromContext(ctx)
	log.Info().Bool("dry_run", dryRun).Msg("Starting receipts sync to Notion")

	names, err := a.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncReceipts: %w", err)
	}
	batches, err := a.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncReceipts: %w", err)
	}

	valid := make(map[string]bool)
	loaded := make(map[string]bool, len(batches))
	for _, b := range batches {
		loaded[b.BackupID] = true
		for _, r := range b.Records {
			valid[r.ID] = true
		}
	}
	// Listed artifacts that LoadAll skipped: unreadable or empty.
	unloaded := make(map[string]bool)
	for _, name := range names {
		if !loaded[name] {
			unloaded[name] = true
		}
	}
	log.Info().
		Int("batches", len(batches)).
		Int("unloaded", len(unloaded)).
		Int("records", len(valid)).
		Msg("Loaded archive")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncReceipts: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	report := &SyncReport{}
	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		id := extractRecordID(page)
		if id != "" && valid[id] && !existing[id] {
			existing[id] = true
			continue
		}
		if backupID := extractBackupID(page); id != "" && !existing[id] && unloaded[backupID] {
			log.Warn().Str("record_id", id).Str("backup_id", backupID).Str("page_id", string(page.ID)).
				Msg("Keeping Notion page of an artifact that could not be loaded")
			existing[id] = true
			report.Skipped++
			continue
		}

		// Stale row, page without an id, or a duplicate page for the same id.
		if dryRun {
			log.Info().Str("record_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			report.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("record_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			report.Failed++
			continue
		}
		report.Archived++
	}

	for _, b := range batches {
		for _, r := range b.Records {
			if existing[r.ID] {
				report.Skipped++
				continue
			}
			if dryRun {
				log.Info().Str("record_id", r.ID).Str("backup_id", b.BackupID).Msg("[DRY RUN] Would create Notion page")
				report.Created++
				continue
			}
			page, err := notionClient.CreatePage(ctx, notionDBID, RecordToNotionProperties(b.BackupID, r))
			if err != nil {
				log.Warn().Err(err).Str("record_id", r.ID).Msg("Failed to create Notion page")
				report.Failed++
				continue
			}
			existing[r.ID] = true
			log.Debug().Str("record_id", r.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
			report.Created++
		}
	}

	log.Info().
		Int("created", report.Created).
		Int("archived", report.Archived).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Receipts sync completed")
	return report, nil
}

// queryAllNotionPages follows pagination until every page is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
