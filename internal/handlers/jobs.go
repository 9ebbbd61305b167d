package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/services"
)

var errNoOutput = errors.New("job has no packaged output")

type JobsHandler struct {
	jobs services.JobService
}

func NewJobsHandler(jobs services.JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

type submitBody struct {
	SourcePath  string         `json:"source_path"`
	DryRun      bool           `json:"dry_run"`
	ReviewGate  *bool          `json:"review_gate"`
	CallbackURL string         `json:"callback_url"`
	Options     map[string]any `json:"options"`
}

// POST /api/jobs
// Accepts either a multipart upload ("archive" file field) or a JSON body
// pointing at a zip already on disk.
func (h *JobsHandler) Submit(c *gin.Context) {
	req := services.SubmitRequest{}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, header, err := c.Request.FormFile("archive")
		if err != nil {
			RespondError(c, http.StatusBadRequest, "missing_archive", err)
			return
		}
		defer file.Close()
		req.Upload = file
		req.FileName = header.Filename
		req.DryRun = c.PostForm("dry_run") == "true"
		req.CallbackURL = c.PostForm("callback_url")
		if v := c.PostForm("review_gate"); v != "" {
			gate := v == "true"
			req.ReviewGate = &gate
		}
	} else {
		var body submitBody
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
		req.ZipPath = body.SourcePath
		req.DryRun = body.DryRun
		req.ReviewGate = body.ReviewGate
		req.CallbackURL = body.CallbackURL
		req.Options = body.Options
	}

	job, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/jobs
func (h *JobsHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	out, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondOK(c, gin.H{"jobs": out})
}

// GET /api/jobs/:id
func (h *JobsHandler) Get(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/report
func (h *JobsHandler) Report(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	report, err := h.jobs.Report(c.Request.Context(), id)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondOK(c, report)
}

// POST /api/jobs/:id/approve
func (h *JobsHandler) Approve(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Approve(c.Request.Context(), id)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
func (h *JobsHandler) Cancel(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/rollback
func (h *JobsHandler) Rollback(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Rollback(c.Request.Context(), id)
	if err != nil {
		RespondKindError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/download
func (h *JobsHandler) Download(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	if job.OutputZip == "" {
		RespondError(c, http.StatusConflict, "no_output", errNoOutput)
		return
	}
	c.FileAttachment(job.OutputZip, "organized.zip")
}

func (h *JobsHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return uuid.Nil, false
	}
	return id, true
}
