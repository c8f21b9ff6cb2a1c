// Package ocr is the HTTP adapter for the external text recognition engine.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"identrisk/internal/verification/extractor"
)

// Client posts raw image bytes and reads back recognised lines.
type Client struct {
	url        string
	httpClient *http.Client
}

func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

type recognizeResponse struct {
	Lines []extractor.Line `json:"lines"`
}

// Recognize implements extractor.TextRecognizer.
func (c *Client) Recognize(ctx context.Context, image []byte) ([]extractor.Line, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	return out.Lines, nil
}
