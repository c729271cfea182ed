package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/fileprint/internal/core"
	"github.com/orrn/fileprint/internal/logging"
)

const serviceName = "fileprint"

// Response is the envelope every intake endpoint answers with. Code mirrors
// the HTTP status as a string.
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type PrintRequest struct {
	FileURL string `json:"fileUrl" form:"fileUrl"`
}

type PrintData struct {
	JobIDs []int64 `json:"job_ids"`
}

type PrintPlanner interface {
	SubmitPrint(opts core.DownloadOptions, done func(core.Outcome)) ([]*core.Job, error)
	SubmitBatch(fileURL string, base core.DownloadOptions, done func(core.BatchOutcome)) ([]*core.Job, error)
}

type QueueInspector interface {
	Snapshot() []core.EntryView
	Stats() core.QueueStats
}

type Previewer interface {
	Preview(fileURL string) error
}

type QueueResponse struct {
	Stats   core.QueueStats  `json:"stats"`
	Entries []core.EntryView `json:"entries"`
}

type PrintHandler struct {
	planner   PrintPlanner
	queue     QueueInspector
	previewer Previewer
	logger    *zap.Logger
}

// NewPrintHandler builds the intake handlers. previewer may be nil when the
// relay runs without a host process.
func NewPrintHandler(planner PrintPlanner, queue QueueInspector, previewer Previewer, logger *zap.Logger) *PrintHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintHandler{
		planner:   planner,
		queue:     queue,
		previewer: previewer,
		logger:    logger,
	}
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Code: strconv.Itoa(status), Message: message, Data: data})
}

// queryValue reads key from the raw query string. Only '&' separates pairs,
// so batch lists joined with raw ';' survive; url.ParseQuery drops them.
func queryValue(c *gin.Context, key string) string {
	for _, pair := range strings.Split(c.Request.URL.RawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if k != key {
			continue
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			return uv
		}
		return v
	}
	return ""
}

// fileURL prefers the query string and falls back to a JSON or form body.
func fileURL(c *gin.Context) string {
	if v := queryValue(c, "fileUrl"); v != "" {
		return v
	}
	var req PrintRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBind(&req)
	}
	return req.FileURL
}

func (h *PrintHandler) Index(c *gin.Context) {
	respond(c, http.StatusOK, serviceName, nil)
}

func (h *PrintHandler) Print(c *gin.Context) {
	logger := logging.FromContext(c, h.logger)

	opts, err := core.DecodeOptions(fileURL(c))
	if err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	done := make(chan core.Outcome, 1)
	jobs, err := h.planner.SubmitPrint(opts, func(out core.Outcome) {
		done <- out
	})
	if err != nil {
		logger.Warn("print request rejected", zap.String("url", opts.URL), zap.Error(err))
		respond(c, submitStatus(err), err.Error(), nil)
		return
	}

	data := PrintData{JobIDs: jobIDs(jobs)}
	logger.Info("print request queued", zap.String("url", opts.URL), zap.Int64s("job_ids", data.JobIDs))

	select {
	case out := <-done:
		if out.Succeeded {
			respond(c, http.StatusOK, out.Message, data)
			return
		}
		respond(c, http.StatusInternalServerError, out.Message, data)
	case <-c.Request.Context().Done():
		logger.Info("client went away before print finished", zap.Int64s("job_ids", data.JobIDs))
	}
}

func (h *PrintHandler) MultiplePrint(c *gin.Context) {
	logger := logging.FromContext(c, h.logger)

	done := make(chan core.BatchOutcome, 1)
	jobs, err := h.planner.SubmitBatch(fileURL(c), core.DownloadOptions{}, func(out core.BatchOutcome) {
		done <- out
	})
	if err != nil {
		respond(c, submitStatus(err), err.Error(), nil)
		return
	}

	var batchID string
	if len(jobs) > 0 {
		batchID = jobs[0].BatchID
		logger.Info("batch queued",
			zap.String("batch_id", batchID),
			zap.Int64("batch_start", jobs[0].BatchStart),
			zap.Int64("batch_end", jobs[0].BatchEnd),
		)
	}

	select {
	case out := <-done:
		if out.Succeeded {
			respond(c, http.StatusOK, out.Message, out)
			return
		}
		respond(c, http.StatusInternalServerError, out.Message, out)
	case <-c.Request.Context().Done():
		logger.Info("client went away before batch finished", zap.String("batch_id", batchID))
	}
}

func (h *PrintHandler) Preview(c *gin.Context) {
	target := queryValue(c, "fileUrl")
	if target == "" {
		respond(c, http.StatusBadRequest, "fileUrl is required", nil)
		return
	}
	if h.previewer == nil {
		respond(c, http.StatusServiceUnavailable, "preview requires a host process", nil)
		return
	}
	if err := h.previewer.Preview(target); err != nil {
		logging.FromContext(c, h.logger).Error("failed to forward preview", zap.Error(err))
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PrintHandler) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, QueueResponse{
		Stats:   h.queue.Stats(),
		Entries: h.queue.Snapshot(),
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrMissingSourceURL),
		errors.Is(err, core.ErrMissingOptions),
		errors.Is(err, core.ErrInvalidOptions),
		errors.Is(err, core.ErrEmptyBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func jobIDs(jobs []*core.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func (h *PrintHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Index)
	r.POST("/print", h.Print)
	r.POST("/multiple-print", h.MultiplePrint)
	r.GET("/preview", h.Preview)
	r.GET("/queue", h.Queue)
}
