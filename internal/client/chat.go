package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carver777/health-management/internal/stream"
)

const readBufferSize = 4096

// ChatRequest is the payload for the assistant's streaming chat endpoint.
type ChatRequest struct {
	RequestID      string `json:"requestId"`
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

// Client talks to the HealthLife backend.
type Client struct {
	base   string
	token  string
	logger *zap.Logger
}

func New(base, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, token: token, logger: logger}
}

// getHTTPClient returns a singleton HTTP client. No client-level timeout is
// set: chat responses stream for as long as the model talks, and the request
// context bounds them instead.
var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		}
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext

		httpClient = &http.Client{Transport: transport}
	})
	return httpClient
}

// Chat opens the assistant's event stream for userID and returns a queue of
// parsed events. A connection failure or non-200 status rejects the call
// itself; errors after the stream has started surface through Next.
// Cancelling ctx ends the sequence without error and releases the response
// body.
func (c *Client) Chat(ctx context.Context, userID string, req ChatRequest) (*stream.Queue[stream.ChatEvent], error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ai/chat", bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-User-Id", userID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := getHTTPClient().Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
		cancel()
		return nil, fmt.Errorf("chat request failed with status %d: %s", resp.StatusCode, body)
	}

	c.logger.Debug("chat stream opened",
		zap.String("request_id", req.RequestID),
		zap.String("conversation_id", req.ConversationID))

	queue := stream.New[stream.ChatEvent]()
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(cancel) }
	decoder := stream.NewDecoder(queue, stop)

	go c.consume(ctx, resp.Body, decoder, stop)

	return queue, nil
}

// consume reads the response body chunk by chunk into the decoder. The body
// is closed and the request context cancelled on every exit path.
func (c *Client) consume(ctx context.Context, body io.ReadCloser, decoder *stream.Decoder[stream.ChatEvent], stop func()) {
	defer stop()
	defer func() {
		if err := body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.logger.Debug("chunk received", zap.Int("bytes", n))
			decoder.Feed(buf[:n])
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, io.EOF):
			decoder.Finish()
		case ctx.Err() != nil:
			// Cancelled by the consumer or by a close event; not an error.
			decoder.Cancel()
		default:
			c.logger.Debug("chat stream read failed", zap.Error(err))
			decoder.Fail(err)
		}
		return
	}
}
