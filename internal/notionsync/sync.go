// Package notionsync mirrors a user's stored transactions into a Notion
// database.
package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

// SyncResult counts the page operations of one sync.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Archived  int `json:"archived"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// SyncTransactions makes the Notion database hold exactly the user's
// transactions dated in [start, end):
//  1. pages are matched to transactions by content hash
//  2. missing transactions get a new page
//  3. pages whose category differs are updated
//  4. pages whose hash is no longer stored are archived
//
// Page failures are logged and counted; only loading either side fails the sync.
func SyncTransactions(ctx context.Context, source TransactionSource, notion NotionService, databaseID, userID string, start, end time.Time, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Str("user_id", userID).
		Time("start_date", start).
		Time("end_date", end).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	txs, err := source.TransactionsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: loading transactions: %w", err)
	}

	pages, err := queryUserPages(ctx, notion, databaseID, userID)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}

	log.Info().
		Int("transaction_count", len(txs)).
		Int("notion_page_count", len(pages)).
		Msg("Loaded both sides")

	byHash := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		if h := pageText(page, propHash); h != "" {
			byHash[h] = page
		}
	}

	res := &SyncResult{}
	wanted := make(map[string]bool, len(txs))
	for _, tx := range txs {
		hash := tx.ContentHash()
		wanted[hash] = true
		page, exists := byHash[hash]

		switch {
		case exists && pageCategory(page) == tx.Category:
			res.Unchanged++
		case dryRun && exists:
			res.Updated++
		case dryRun:
			res.Created++
		case exists:
			if _, err := notion.UpdatePage(ctx, string(page.ID), TransactionToNotionProperties(tx)); err != nil {
				log.Warn().Err(err).Str("content_hash", hash).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
		default:
			if _, err := notion.CreatePage(ctx, databaseID, TransactionToNotionProperties(tx)); err != nil {
				log.Warn().Err(err).Str("content_hash", hash).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			res.Created++
		}
	}

	for _, page := range pages {
		hash := pageText(page, propHash)
		if wanted[hash] || !inRange(page, start, end) {
			continue
		}
		if dryRun {
			res.Archived++
			continue
		}
		if err := notion.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")

	return res, nil
}

// inRange reports whether the page's date falls in [start, end). Pages
// without a date are treated as in range so they get cleaned up.
func inRange(page notionapi.Page, start, end time.Time) bool {
	prop, ok := page.Properties[propDate].(*notionapi.DateProperty)
	if !ok || prop.Date == nil || prop.Date.Start == nil {
		return true
	}
	d := time.Time(*prop.Date.Start)
	return !d.Before(start) && d.Before(end)
}

// queryUserPages pages through the database, returning the user's pages.
func queryUserPages(ctx context.Context, notion NotionService, databaseID, userID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
			Filter: notionapi.PropertyFilter{
				Property: propUser,
				RichText: &notionapi.TextFilterCondition{Equals: userID},
			},
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryUserPages: %w", err)
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return all, nil
}
