package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client wraps REST access to the agentkitd API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:8080).
func New(rawURL string) (*Client, error) {
	if rawURL == "" {
		rawURL = "http://127.0.0.1:8080"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Run represents the API response for an agent run.
type Run struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Inputs     map[string]any `json:"inputs"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Upload represents a stored file.
type Upload struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	MIME         string `json:"mime"`
	Size         int64  `json:"size"`
}

// RunEvent is one frame of a run's event feed.
type RunEvent struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Page is the rendered page description served at /.
type Page struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Components  []struct {
		ID    string         `json:"id"`
		Type  string         `json:"type"`
		Props map[string]any `json:"props"`
	} `json:"components"`
}

func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) RenderPage(ctx context.Context) (*Page, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/runs", nil)
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := c.do(req, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := c.do(req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// StartRun submits the form at POST /run. inputs become form fields, files
// are attached under the given field name.
func (c *Client) StartRun(ctx context.Context, trigger string, inputs map[string]string, fileField string, files []string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("_trigger", trigger); err != nil {
		return "", fmt.Errorf("client: encode form: %w", err)
	}
	for key, value := range inputs {
		if err := form.WriteField(key, value); err != nil {
			return "", fmt.Errorf("client: encode form: %w", err)
		}
	}
	for _, path := range files {
		if err := attachFile(form, fileField, path); err != nil {
			return "", err
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("client: encode form: %w", err)
	}

	resolved := c.baseURL.ResolveReference(&url.URL{Path: "/run"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolved.String(), &body)
	if err != nil {
		return "", fmt.Errorf("client: new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var started struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(req, &started); err != nil {
		return "", err
	}
	return started.RunID, nil
}

func attachFile(form *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("client: open file: %w", err)
	}
	defer f.Close()

	part, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("client: attach file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("client: attach file: %w", err)
	}
	return nil
}

// RunLog fetches the run's full event history as JSONL.
func (c *Client) RunLog(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id)+"/log", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// WatchRun streams the run's event feed and invokes handler for each frame
// until the run finishes, the context is cancelled, or the server closes the
// connection. Returns nil after a terminal frame.
func (c *Client) WatchRun(ctx context.Context, id string, handler func(RunEvent)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream stays open for the life of the run.
	watchClient := &http.Client{}
	resp, err := watchClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: watch run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: watch run http %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventType string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event RunEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("client: decode event: %w", err)
		}
		event.Type = eventType
		if handler != nil {
			handler(event)
		}
		if eventType == "final" || eventType == "error" {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("client: event stream error: %w", err)
		}
	}

	return nil
}

func (c *Client) ListUploads(ctx context.Context) ([]Upload, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/uploads", nil)
	if err != nil {
		return nil, err
	}
	var uploads []Upload
	if err := c.do(req, &uploads); err != nil {
		return nil, err
	}
	return uploads, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	resolved := c.baseURL.ResolveReference(&url.URL{Path: path})
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("client: http %d", resp.StatusCode)
		}
		if msg, ok := apiErr["error"].(string); ok {
			return fmt.Errorf("client: http %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("client: http %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
