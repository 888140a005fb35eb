// Copyright 2025 Deckhand Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client talks to the local deck-processing worker over HTTP. All operations
// take a context; cancellation aborts the underlying request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKey sets the X-API-Key value sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// New creates a worker API client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mimeTypes maps accepted upload extensions to their content type. The
// worker rejects anything else, so we refuse locally before uploading.
var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ValidateFile checks that path exists and has an accepted extension.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := mimeTypes[ext]; !ok {
		return fmt.Errorf("unsupported file type %q (only PDF, PNG and JPEG are accepted)", ext)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	return req, nil
}

// Ping probes worker readiness. Any 2xx response counts as ready; every
// other outcome is a failed probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("readiness probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("readiness probe: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// CreateDeck uploads the deck title and files as multipart form data and
// returns the job the worker started. A success response without a job id
// is reported as ErrProtocol.
func (c *Client) CreateDeck(ctx context.Context, title string, filePaths []string) (*CreateDeckResponse, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("deck title must not be empty")
	}
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	for _, p := range filePaths {
		if err := ValidateFile(p); err != nil {
			return nil, err
		}
	}

	body, contentType := buildMultipart(title, filePaths)

	req, err := c.newRequest(ctx, http.MethodPost, "/api/create_deck", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	log.Debug().Str("title", title).Int("files", len(filePaths)).Msg("uploading deck")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload deck: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var out CreateDeckResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("%w: create-deck response missing deck_id", ErrProtocol)
	}
	return &out, nil
}

// buildMultipart streams the form through a pipe so large PDFs are never
// buffered whole in memory. Write errors surface on the read side.
func buildMultipart(title string, filePaths []string) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, title, filePaths)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeMultipart(mw *multipart.Writer, title string, filePaths []string) error {
	if err := mw.WriteField("deck_title", title); err != nil {
		return fmt.Errorf("write title field: %w", err)
	}

	for _, path := range filePaths {
		name := filepath.Base(path)
		ext := strings.ToLower(filepath.Ext(path))

		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		header.Set("Content-Type", mimeTypes[ext])

		part, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part for %s: %w", name, err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		_, err = io.Copy(part, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("stream %s: %w", name, err)
		}
	}
	return nil
}

// JobStatus fetches the processing status of a job. The returned status
// string is reported verbatim; terminal classification is the caller's job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/deck/"+jobID+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var out StatusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if out.Status == "" {
		return nil, fmt.Errorf("%w: status response missing status field", ErrProtocol)
	}
	return &out, nil
}

// ListDecks returns the decks stored by the worker.
func (c *Client) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/decks", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read decks response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var out deckListResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode decks response: %w", err)
	}
	if out.Decks == nil {
		return nil, fmt.Errorf("%w: decks response missing decks array", ErrProtocol)
	}
	return out.Decks, nil
}
