package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentkitdev/agentkit/internal/protocol/feed"
	"github.com/agentkitdev/agentkit/internal/server/db"
	"github.com/agentkitdev/agentkit/internal/server/runstore"
	"github.com/agentkitdev/agentkit/ui"
)

// New constructs the HTTP API router for one AgentKit app.
func New(logger *slog.Logger, appFn ui.App, store *runstore.Store, starter ui.RunStarter, uploadDir string) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	api := &apiServer{logger: logger, app: appFn, store: store, starter: starter, uploadDir: uploadDir}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", api.renderPage)
	r.POST("/run", api.startRun)

	v1 := r.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", api.listRuns)
			runs.GET("/:id", api.getRun)
			runs.GET("/:id/events", api.streamRunEvents)
			runs.GET("/:id/log", api.exportRunLog)
		}

		uploads := v1.Group("/uploads")
		{
			uploads.GET("", api.listUploads)
			uploads.POST("", api.createUpload)
		}
	}

	r.GET("/ws/v1/runs/:id", api.runFeedSocket)

	return r
}

// requestLogger adapts slog to Gin's middleware interface.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		args := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", latency.String()),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			args = append(args, slog.String("error", c.Errors.String()))
			logger.Error("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	}
}

type apiServer struct {
	logger    *slog.Logger
	app       ui.App
	store     *runstore.Store
	starter   ui.RunStarter
	uploadDir string
}

// execute runs the app once inside rt. Each request gets its own runtime;
// nothing leaks between concurrent executions.
func (api *apiServer) execute(c *gin.Context, rt *ui.Runtime) error {
	ctx := ui.NewContext(c.Request.Context(), rt)
	return api.app(ctx)
}

func (api *apiServer) renderPage(c *gin.Context) {
	rt := ui.NewRuntime(ui.ModeRender)
	if err := api.execute(c, rt); err != nil {
		api.logger.Error("render app", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	page := rt.Rendered()
	if page == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "app did not render a page"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (api *apiServer) startRun(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("parse form: %v", err)})
		return
	}

	rt := ui.NewRuntime(ui.ModeExecute)
	rt.Starter = api.starter

	if form != nil {
		for key, values := range form.Value {
			if key == "_trigger" {
				if len(values) > 0 {
					rt.Trigger = values[0]
				}
				continue
			}
			if len(values) > 0 {
				rt.Inputs[key] = values[0]
			}
		}
		for field, headers := range form.File {
			for _, header := range headers {
				saved, err := api.persistUpload(c, header)
				if err != nil {
					api.logger.Error("persist upload", "field", field, "error", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
					return
				}
				rt.Files[field] = append(rt.Files[field], saved.path)
			}
		}
	} else {
		rt.Trigger = c.PostForm("_trigger")
		for key, values := range c.Request.PostForm {
			if key == "_trigger" {
				continue
			}
			if len(values) > 0 {
				rt.Inputs[key] = values[0]
			}
		}
	}

	if err := api.execute(c, rt); err != nil {
		api.logger.Error("execute app", "trigger", rt.Trigger, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runIDs := rt.RunIDs()
	if len(runIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "app did not start a run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runIDs[len(runIDs)-1]})
}

type savedUpload struct {
	id   string
	path string
}

// persistUpload writes one multipart file under the upload directory,
// avoiding name collisions, and records it in the store.
func (api *apiServer) persistUpload(c *gin.Context, header *multipart.FileHeader) (savedUpload, error) {
	if err := os.MkdirAll(api.uploadDir, 0o755); err != nil {
		return savedUpload{}, fmt.Errorf("ensure upload dir: %w", err)
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	destination, err := uniquePath(api.uploadDir, name)
	if err != nil {
		return savedUpload{}, err
	}

	src, err := header.Open()
	if err != nil {
		return savedUpload{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destination)
	if err != nil {
		return savedUpload{}, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return savedUpload{}, fmt.Errorf("write upload file: %w", err)
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}

	id, err := api.store.SaveUpload(c.Request.Context(), destination, name, mime, size)
	if err != nil {
		return savedUpload{}, err
	}
	return savedUpload{id: id, path: destination}, nil
}

// uniquePath appends -1, -2, … before the extension until the name is free.
func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil && !os.IsExist(err) {
			return "", fmt.Errorf("probe upload path: %w", err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, counter, ext))
	}
}

type runResponse struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Inputs     map[string]any `json:"inputs"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func runToResponse(run *db.Run) runResponse {
	if run == nil {
		return runResponse{}
	}
	inputs := map[string]any{}
	if len(run.Inputs) > 0 {
		_ = json.Unmarshal(run.Inputs, &inputs)
	}
	return runResponse{
		ID:         run.ID,
		Status:     string(run.Status),
		Inputs:     inputs,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func (api *apiServer) listRuns(c *gin.Context) {
	runs, err := api.store.ListRuns(c.Request.Context())
	if err != nil {
		api.logger.Error("list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runToResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (api *apiServer) getRun(c *gin.Context) {
	id := c.Param("id")
	run, err := api.store.GetRun(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("get run", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, runToResponse(run))
}

// streamRunEvents relays a run's events over SSE: full history first, then
// the live feed until the client disconnects. An event racing the handoff
// may appear twice; at most one terminal event exists, so receivers can
// treat terminal types idempotently.
func (api *apiServer) streamRunEvents(c *gin.Context) {
	id := c.Param("id")
	run, err := api.store.GetRun(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("get run for stream", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	eventsCh := make(chan any, 64)
	unsubscribe, err := api.store.Subscribe(id, eventsCh)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer unsubscribe()

	history, err := api.store.Events(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("run history", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	for _, event := range history {
		if !writeSSE(c, flusher, event) {
			return
		}
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			event, ok := payload.(db.Event)
			if !ok {
				continue
			}
			if !writeSSE(c, flusher, event) {
				return
			}
		}
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, event db.Event) bool {
	envelope := map[string]any{
		"seq":     event.Seq,
		"ts":      event.TS,
		"payload": json.RawMessage(payloadOrEmpty(event.Payload)),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return true
	}
	if _, err := c.Writer.Write([]byte("event: " + string(event.Type) + "\n")); err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func payloadOrEmpty(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	return payload
}

// exportRunLog renders the full event history as one JSON object per line.
func (api *apiServer) exportRunLog(c *gin.Context) {
	id := c.Param("id")
	run, err := api.store.GetRun(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("get run for log", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	events, err := api.store.Events(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("run log", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read log"})
		return
	}

	var builder strings.Builder
	for _, event := range events {
		line, err := json.Marshal(map[string]any{
			"seq":     event.Seq,
			"type":    string(event.Type),
			"payload": json.RawMessage(payloadOrEmpty(event.Payload)),
			"ts":      event.TS,
		})
		if err != nil {
			continue
		}
		builder.Write(line)
		builder.WriteByte('\n')
	}
	c.Data(http.StatusOK, "application/jsonl", []byte(builder.String()))
}

func (api *apiServer) listUploads(c *gin.Context) {
	uploads, err := api.store.ListUploads(c.Request.Context())
	if err != nil {
		api.logger.Error("list uploads", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list uploads"})
		return
	}

	type uploadResponse struct {
		ID           string `json:"id"`
		Path         string `json:"path"`
		OriginalName string `json:"original_name"`
		MIME         string `json:"mime"`
		Size         int64  `json:"size"`
	}
	resp := make([]uploadResponse, 0, len(uploads))
	for _, u := range uploads {
		resp = append(resp, uploadResponse{ID: u.ID, Path: u.Path, OriginalName: u.OriginalName, MIME: u.MIME, Size: u.Size})
	}
	c.JSON(http.StatusOK, resp)
}

func (api *apiServer) createUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	saved, err := api.persistUpload(c, header)
	if err != nil {
		api.logger.Error("upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": saved.id, "path": saved.path})
}

// runFeedSocket pushes typed frames for one run over a WebSocket: history
// first, then live events until the peer goes away.
func (api *apiServer) runFeedSocket(c *gin.Context) {
	id := c.Param("id")
	run, err := api.store.GetRun(c.Request.Context(), id)
	if err != nil || run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	conn, err := (&websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}).Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Error("run feed upgrade", "run_id", id, "error", err)
		return
	}
	defer conn.Close()

	// Upgrade hijacks the connection, so the request context no longer
	// learns about peer disconnects. The socket is write-only; the read
	// pump exists solely to observe the close.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	eventsCh := make(chan any, 64)
	unsubscribe, err := api.store.Subscribe(id, eventsCh)
	if err != nil {
		api.logger.Error("run feed subscribe", "run_id", id, "error", err)
		return
	}
	defer unsubscribe()

	history, err := api.store.Events(ctx, id)
	if err != nil {
		api.logger.Error("run feed history", "run_id", id, "error", err)
		return
	}
	for _, event := range history {
		if err := conn.WriteJSON(feed.FromRecord(event)); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			event, ok := payload.(db.Event)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(feed.FromRecord(event)); err != nil {
				return
			}
		}
	}
}
