// Package notionsync mirrors a user's subscriptions into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/logger"
)

// pageSize is the Notion maximum for database queries.
const pageSize = 100

// SyncResult counts what a sync did, or would do in dry-run mode.
type SyncResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncSubscriptions makes the user's pages in the database match their
// stored subscriptions:
//  1. Query the user's existing pages
//  2. Archive pages whose subscription no longer exists, and duplicates
//  3. Update matched pages and create missing ones
//
// A failure on one page is logged and counted; the sync carries on.
func SyncSubscriptions(ctx context.Context, repo bq.SubscriptionRepository, notionClient NotionService, notionDBID, userID string, dryRun bool) (*SyncResult, error) {
	log := logger.ForUser(logger.FromContext(ctx), userID)

	rows, err := repo.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("SyncSubscriptions: listing subscriptions: %w", err)
	}
	subs, err := bq.SubscriptionsToDomain(rows)
	if err != nil {
		return nil, fmt.Errorf("SyncSubscriptions: %w", err)
	}

	pages, err := queryUserPages(ctx, notionClient, notionDBID, userID)
	if err != nil {
		return nil, fmt.Errorf("SyncSubscriptions: %w", err)
	}

	log.Info().
		Int("subscription_count", len(subs)).
		Int("notion_page_count", len(pages)).
		Bool("dry_run", dryRun).
		Msg("Starting subscription sync to Notion")

	valid := make(map[string]bool, len(subs))
	for _, s := range subs {
		valid[s.SubscriptionID] = true
	}

	res := &SyncResult{}
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		id := extractSubscriptionID(page)
		pageID := string(page.ID)

		if id != "" && valid[id] && existing[id] == "" {
			existing[id] = pageID
			continue
		}

		if dryRun {
			log.Info().Str("subscription_id", id).Str("page_id", pageID).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, pageID); err != nil {
			log.Warn().Err(err).Str("subscription_id", id).Str("page_id", pageID).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for _, sub := range subs {
		pageID, found := existing[sub.SubscriptionID]
		if dryRun {
			if found {
				res.Updated++
			} else {
				log.Info().Str("subscription_id", sub.SubscriptionID).Str("merchant", sub.Merchant).Msg("[DRY RUN] Would create Notion page")
				res.Created++
			}
			continue
		}

		props := SubscriptionToNotionProperties(sub)
		if found {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("subscription_id", sub.SubscriptionID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("subscription_id", sub.SubscriptionID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("subscription_id", sub.SubscriptionID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Subscription sync completed")

	return res, nil
}

// queryUserPages returns every page belonging to userID, following cursors.
func queryUserPages(ctx context.Context, notionClient NotionService, databaseID, userID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropUserID,
				RichText: &notionapi.TextFilterCondition{Equals: userID},
			},
			PageSize: pageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryUserPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
