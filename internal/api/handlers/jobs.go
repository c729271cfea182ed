package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/fileprint/internal/core"
	"github.com/orrn/fileprint/internal/db"
)

type ListJobsQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=succeeded failed"`
	BatchID  string `form:"batch_id"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
	Limit    int    `form:"limit" binding:"max=100"`
	Offset   int    `form:"offset"`
	SortDir  string `form:"sort_dir"`
}

type JobStatsResponse struct {
	Today *db.JobStats `json:"today"`
	Week  *db.JobStats `json:"week"`
	Month *db.JobStats `json:"month"`
}

type JobHistory interface {
	ListJobs(ctx context.Context, filter db.JobFilter) ([]*db.JobRecord, error)
	GetJobByID(ctx context.Context, id int64) (*db.JobRecord, error)
	Stats(ctx context.Context, since time.Time) (*db.JobStats, error)
}

type JobHandler struct {
	history JobHistory
	planner PrintPlanner
	now     func() time.Time
}

func NewJobHandler(history JobHistory, planner PrintPlanner) *JobHandler {
	return &JobHandler{
		history: history,
		planner: planner,
		now:     time.Now,
	}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	filter := db.JobFilter{
		Status:   query.Status,
		BatchID:  query.BatchID,
		Limit:    query.Limit,
		Offset:   query.Offset,
		OrderDir: query.SortDir,
	}

	if query.FromDate != "" {
		t, err := time.Parse("2006-01-02", query.FromDate)
		if err == nil {
			filter.FromDate = &t
		}
	}
	if query.ToDate != "" {
		t, err := time.Parse("2006-01-02", query.ToDate)
		if err == nil {
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.ToDate = &endOfDay
		}
	}

	jobs, err := h.history.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []*db.JobRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(jobs),
	})
}

func (h *JobHandler) getRecord(c *gin.Context) (*db.JobRecord, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}

	rec, err := h.history.GetJobByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return nil, false
	}
	return rec, true
}

func (h *JobHandler) GetJob(c *gin.Context) {
	rec, ok := h.getRecord(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ReprintJob queues a recorded job again with the options it last ran with.
// It does not wait for the print to finish.
func (h *JobHandler) ReprintJob(c *gin.Context) {
	rec, ok := h.getRecord(c)
	if !ok {
		return
	}

	opts := core.DownloadOptions{
		URL:         rec.EffectiveURL,
		Pages:       rec.Pages,
		Orientation: rec.Orientation,
		PaperSize:   rec.PaperSize,
		Printer:     rec.Printer,
	}
	jobs, err := h.planner.SubmitPrint(opts, nil)
	if err != nil {
		c.JSON(submitStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "job queued for reprint",
		"job_ids": jobIDs(jobs),
	})
}

func (h *JobHandler) GetJobStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	resp := &JobStatsResponse{}
	var err error
	if resp.Today, err = h.history.Stats(ctx, todayStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job stats"})
		return
	}
	if resp.Week, err = h.history.Stats(ctx, todayStart.AddDate(0, 0, -7)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job stats"})
		return
	}
	if resp.Month, err = h.history.Stats(ctx, todayStart.AddDate(0, -1, 0)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job stats"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.GetJobStats)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/reprint", h.ReprintJob)
}
