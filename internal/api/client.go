// Package api implements the REST collaborators of the chat engine: paginated
// conversation history, the shared canvas document, and the file-upload
// endpoint whose extracted text enriches an outgoing chat frame.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/lexhub/agentstream/internal/config"
	"github.com/lexhub/agentstream/internal/session"
)

// Client calls the gateway's REST surface.
type Client struct {
	http   *http.Client
	cfg    *config.AppConfig
	logger *slog.Logger
}

// NewClient creates a REST client.
func NewClient(cfg *config.AppConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		logger: logger,
	}
}

// historyEntry is the stored message shape returned by the gateway.
type historyEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type historyPage struct {
	Messages []historyEntry `json:"messages"`
	Total    int            `json:"total"`
}

// FetchHistory loads one page of conversation history, oldest first, mapped
// into session messages. Attachment markers are left in the body; the session
// store strips them during the merge.
func (c *Client) FetchHistory(ctx context.Context, conversationID string, page, pageSize int) ([]session.Message, error) {
	url := c.cfg.HistoryURL(conversationID) +
		"?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	var pageData historyPage
	if err := json.NewDecoder(resp.Body).Decode(&pageData); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	messages := make([]session.Message, 0, len(pageData.Messages))
	for _, entry := range pageData.Messages {
		messages = append(messages, session.Message{
			ID:        entry.ID,
			Kind:      roleToKind(entry.Role),
			Body:      entry.Content,
			Agent:     entry.Agent,
			CreatedAt: entry.CreatedAt,
		})
	}

	c.logger.DebugContext(ctx, "History page fetched",
		"conversation_id", conversationID,
		"page", page,
		"messages", len(messages),
	)
	return messages, nil
}

// CanvasDocument is the restored canvas payload.
type CanvasDocument struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	SavedAt    time.Time `json:"saved_at,omitempty"`
}

// FetchCanvas restores the shared canvas document for a conversation. A 404
// means no canvas exists yet and returns nil without error.
func (c *Client) FetchCanvas(ctx context.Context, conversationID string) (*CanvasDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CanvasURL(conversationID), nil)
	if err != nil {
		return nil, fmt.Errorf("build canvas request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch canvas: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch canvas: unexpected status %d", resp.StatusCode)
	}

	var doc CanvasDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode canvas: %w", err)
	}
	return &doc, nil
}

// UploadResult is the gateway's response to a document upload.
type UploadResult struct {
	DocumentID    string `json:"document_id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	Kind          string `json:"kind"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// UploadDocument uploads a file and returns the stored document descriptor,
// including server-extracted text used to enrich the outgoing chat frame.
func (c *Client) UploadDocument(ctx context.Context, name string, content io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy upload content: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL(), &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload document: unexpected status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}

func roleToKind(role string) session.Kind {
	switch role {
	case "user":
		return session.KindUser
	case "system":
		return session.KindSystem
	default:
		return session.KindAssistant
	}
}
