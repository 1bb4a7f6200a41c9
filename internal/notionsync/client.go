package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// Notion allows an average of three requests per second per integration.
const requestsPerSecond = 3

// NotionClient is the concrete implementation of NotionService using the official Notion SDK.
type NotionClient struct {
	client  *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client:  notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(requestsPerSecond, requestsPerSecond),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// UpdatePage replaces the given properties of an existing page.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}

	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase runs one page of a database query.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}

	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// DeletePage archives a Notion page by setting its archived property to true.
func (n *NotionClient) DeletePage(ctx context.Context, pageID string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("DeletePage: %w", err)
	}

	_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	})
	if err != nil {
		return fmt.Errorf("DeletePage: %w", err)
	}
	return nil
}

var _ NotionService = (*NotionClient)(nil)
