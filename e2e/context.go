package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext talks to a running identrisk server and remembers the last
// response plus any values a scenario saved.
type TestContext struct {
	baseURL string
	client  *http.Client

	status int
	body   []byte
	saved  map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		saved:   make(map[string]string),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.status = 0
	tc.body = nil
	tc.saved = make(map[string]string)
}

func (tc *TestContext) POST(path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(raw))
}

func (tc *TestContext) POSTRaw(path, body string) error {
	return tc.do(http.MethodPost, path, strings.NewReader(body))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.baseURL+tc.Expand(path), body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) Status() int { return tc.status }

func (tc *TestContext) Body() []byte { return tc.body }

// ResponseField walks a dotted path through the last JSON response.
// Numeric segments index arrays.
func (tc *TestContext) ResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %s", string(tc.body))
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", path, string(tc.body))
			}
			cur = v
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("bad index %q in %q", part, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("field %q not found", path)
		}
	}
	return cur, nil
}

func (tc *TestContext) Save(name, value string) { tc.saved[name] = value }

func (tc *TestContext) Saved(name string) string { return tc.saved[name] }

// Expand replaces {name} placeholders with saved values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.saved {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
