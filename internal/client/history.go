package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// envelope mirrors the backend's uniform response wrapper. Code 1 means
// success; anything else carries the failure reason in Msg.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// HistoryEntry is one prior turn of a conversation.
type HistoryEntry struct {
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

type historyPage struct {
	Total int64          `json:"total"`
	Rows  []HistoryEntry `json:"rows"`
}

// History fetches a page of prior conversation turns for userID.
func (c *Client) History(ctx context.Context, userID string, page, pageSize int) ([]HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/ai/history", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	query := req.URL.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	req.URL.RawQuery = query.Encode()

	req.Header.Set("X-User-Id", userID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("history request failed with status %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	if env.Code != 1 {
		return nil, fmt.Errorf("history request rejected: %s", env.Msg)
	}

	var result historyPage
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode history page: %w", err)
	}

	return result.Rows, nil
}
