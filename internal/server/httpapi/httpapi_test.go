package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/agentkitdev/agentkit/internal/server/metrics"

	"github.com/agentkitdev/agentkit/internal/server/backend"
	"github.com/agentkitdev/agentkit/internal/server/db/sqlite"
	"github.com/agentkitdev/agentkit/internal/server/eventbus/memory"
	"github.com/agentkitdev/agentkit/internal/server/runner"
	"github.com/agentkitdev/agentkit/internal/server/runstore"
	"github.com/agentkitdev/agentkit/ui"
)

func testApp(ctx context.Context) error {
	return ui.Page(ctx, "Test App", "", func(ctx context.Context) error {
		task, err := ui.TextInput(ctx, "Task")
		if err != nil {
			return err
		}
		files, err := ui.FileUploader(ctx, "Attachments")
		if err != nil {
			return err
		}
		pressed, err := ui.Button(ctx, "Run Agent")
		if err != nil {
			return err
		}
		if err := ui.Chat(ctx); err != nil {
			return err
		}
		if pressed && task.Value() != "" {
			rt := ui.FromContext(ctx)
			runID, err := rt.Starter.StartRun(ctx, map[string]any{"task": task.Value()}, files.Paths())
			if err != nil {
				return err
			}
			rt.RecordRun(runID)
		}
		return nil
	})
}

type harness struct {
	server *httptest.Server
	store  *runstore.Store
	exec   *runner.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbStore, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbStore.Close(context.Background()) })

	store := runstore.New(dbStore, memory.New(), logger)
	exec := runner.New(store, backend.NewOffline(), logger)
	handler := New(logger, testApp, store, exec, filepath.Join(t.TempDir(), "uploads"))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &harness{server: server, store: store, exec: exec}
}

// startTestRun submits the form with the given fields and one optional file,
// waits for the executor to drain, and returns the run id.
func startTestRun(t *testing.T, h *harness, task, filename string, contents []byte) string {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("_trigger", "run-agent"))
	require.NoError(t, form.WriteField("task", task))
	if filename != "" {
		part, err := form.CreateFormFile("attachments", filename)
		require.NoError(t, err)
		_, err = part.Write(contents)
		require.NoError(t, err)
	}
	require.NoError(t, form.Close())

	resp, err := http.Post(h.server.URL+"/run", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	require.NotEmpty(t, started.RunID)

	h.exec.Wait()
	return started.RunID
}

func TestRenderPage(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page ui.PageSpec
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Equal(t, "Test App", page.Title)

	ids := make([]string, 0, len(page.Components))
	for _, component := range page.Components {
		ids = append(ids, component.ID)
	}
	require.Equal(t, []string{"task", "attachments", "run-agent", "conversation"}, ids)
}

func TestStartRunAndFetchLog(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("_trigger", "run-agent"))
	require.NoError(t, form.WriteField("task", "hello"))
	require.NoError(t, form.Close())

	resp, err := http.Post(h.server.URL+"/run", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	require.NotEmpty(t, started.RunID)

	h.exec.Wait()

	runResp, err := http.Get(h.server.URL + "/api/v1/runs/" + started.RunID)
	require.NoError(t, err)
	defer runResp.Body.Close()
	require.Equal(t, http.StatusOK, runResp.StatusCode)

	var run struct {
		Status string         `json:"status"`
		Inputs map[string]any `json:"inputs"`
	}
	require.NoError(t, json.NewDecoder(runResp.Body).Decode(&run))
	require.Equal(t, "succeeded", run.Status)
	require.Equal(t, "hello", run.Inputs["task"])

	logResp, err := http.Get(h.server.URL + "/api/v1/runs/" + started.RunID + "/log")
	require.NoError(t, err)
	defer logResp.Body.Close()
	require.Equal(t, http.StatusOK, logResp.StatusCode)

	raw, err := io.ReadAll(logResp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	var last struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	require.Equal(t, "final", last.Type)
}

func TestStartRunWithUpload(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("_trigger", "run-agent"))
	require.NoError(t, form.WriteField("task", "summarize"))
	part, err := form.CreateFormFile("attachments", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("some notes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := http.Post(h.server.URL+"/run", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h.exec.Wait()

	uploadsResp, err := http.Get(h.server.URL + "/api/v1/uploads")
	require.NoError(t, err)
	defer uploadsResp.Body.Close()

	var uploads []struct {
		OriginalName string `json:"original_name"`
		Size         int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(uploadsResp.Body).Decode(&uploads))
	require.Len(t, uploads, 1)
	require.Equal(t, "notes.txt", uploads[0].OriginalName)
	require.Equal(t, int64(len("some notes")), uploads[0].Size)
}

func TestStartRunWithoutTrigger(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("task", "hello"))
	require.NoError(t, form.Close())

	resp, err := http.Post(h.server.URL+"/run", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/api/v1/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartRunWithDuplicateUploadNames(t *testing.T) {
	h := newHarness(t)

	startTestRun(t, h, "first", "notes.txt", []byte("first notes"))
	startTestRun(t, h, "second", "notes.txt", []byte("second notes"))

	uploadsResp, err := http.Get(h.server.URL + "/api/v1/uploads")
	require.NoError(t, err)
	defer uploadsResp.Body.Close()

	var uploads []struct {
		Path         string `json:"path"`
		OriginalName string `json:"original_name"`
	}
	require.NoError(t, json.NewDecoder(uploadsResp.Body).Decode(&uploads))
	require.Len(t, uploads, 2)

	names := []string{filepath.Base(uploads[0].Path), filepath.Base(uploads[1].Path)}
	require.ElementsMatch(t, []string{"notes.txt", "notes-1.txt"}, names)
	for _, upload := range uploads {
		require.Equal(t, "notes.txt", upload.OriginalName)
		require.FileExists(t, upload.Path)
	}
}

func TestUniquePathSuffixes(t *testing.T) {
	dir := t.TempDir()

	want := []string{"report.pdf", "report-1.pdf", "report-2.pdf"}
	for _, expected := range want {
		got, err := uniquePath(dir, "report.pdf")
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, expected), got)
		require.NoError(t, os.WriteFile(got, []byte("x"), 0o644))
	}

	// Extensionless names suffix the same way.
	got, err := uniquePath(dir, "data")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "data"), got)
	require.NoError(t, os.WriteFile(got, []byte("x"), 0o644))
	got, err = uniquePath(dir, "data")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "data-1"), got)
}

func TestRunFeedSocketUnsubscribesOnClose(t *testing.T) {
	h := newHarness(t)
	runID := startTestRun(t, h, "hello", "", nil)

	baseline := testutil.ToFloat64(metrics.LiveSubscribers)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/v1/runs/" + runID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	// The run already finished, so the socket serves the full history:
	// status, token, final.
	for i := 0; i < 3; i++ {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
	}
	require.NoError(t, conn.Close())

	// The handler parks on the live feed; its read pump must observe the
	// close and release the subscription.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.LiveSubscribers) == baseline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamRunEventsReplaysHistory(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("_trigger", "run-agent"))
	require.NoError(t, form.WriteField("task", "hello"))
	require.NoError(t, form.Close())

	resp, err := http.Post(h.server.URL+"/run", form.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	h.exec.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/api/v1/runs/"+started.RunID+"/events", nil)
	require.NoError(t, err)

	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	require.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	buf := make([]byte, 8192)
	var collected strings.Builder
	for !strings.Contains(collected.String(), "event: final") {
		n, err := streamResp.Body.Read(buf)
		if n > 0 {
			collected.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	require.Contains(t, collected.String(), "event: status")
	require.Contains(t, collected.String(), "event: final")
}
