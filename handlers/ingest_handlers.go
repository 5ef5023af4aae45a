package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizzer-server/ingestion"
	"quizzer-server/models"
)

// readUploads loads every file of the "files" form field into memory.
func readUploads(c *gin.Context) ([]ingestion.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, ingestion.ErrNoFiles
	}
	uploads := make([]ingestion.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, ingestion.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadError(c *gin.Context, err error) {
	if errors.Is(err, ingestion.ErrNoFiles) {
		respondError(c, err, "No files uploaded")
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// IngestFiles starts one job per uploaded file.
// POST /api/v1/ingest
func IngestFiles(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploads, err := readUploads(c)
		if err != nil {
			uploadError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, pipeline.Ingest(uploads))
	}
}

// IngestCombined makes one test out of every uploaded PDF.
// POST /api/v1/ingest/combined
func IngestCombined(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploads, err := readUploads(c)
		if err != nil {
			uploadError(c, err)
			return
		}
		job, err := pipeline.IngestCombined(c.DefaultPostForm("name", "Combined Quiz"), uploads)
		if err != nil {
			respondError(c, err, "Failed to start combined ingestion")
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

// ListJobs returns every ingestion job, oldest first.
// GET /api/v1/ingest/jobs
func ListJobs(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, pipeline.Jobs())
	}
}

// GetJob returns one ingestion job.
// GET /api/v1/ingest/jobs/:id
func GetJob(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := pipeline.Job(c.Param("id"))
		if !ok {
			respondError(c, ingestion.ErrJobNotFound, "Job not found")
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// CancelJob aborts a running job.
// POST /api/v1/ingest/jobs/:id/cancel
func CancelJob(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pipeline.Cancel(c.Param("id")); err != nil {
			respondError(c, err, "Failed to cancel job")
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// RemoveJob forgets a job, cancelling it first if it is still running.
// DELETE /api/v1/ingest/jobs/:id
func RemoveJob(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pipeline.Remove(c.Param("id")); err != nil {
			respondError(c, err, "Failed to remove job")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// RepairJob retries parsing a failed job with corrected text.
// POST /api/v1/ingest/jobs/:id/repair
func RepairJob(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RepairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		job, err := pipeline.Repair(c.Param("id"), req.Text)
		if errors.Is(err, ingestion.ErrUnparseable) {
			// the job carries the "Still invalid" reason and the new draft
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": job.Error, "job": job})
			return
		}
		if err != nil {
			respondError(c, err, "Failed to repair job")
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// CommitJobs writes every ready job as a test.
// POST /api/v1/ingest/commit
func CommitJobs(pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := pipeline.Commit(c.Request.Context())
		if err != nil {
			respondError(c, err, "Failed to save tests")
			return
		}
		ids := make([]string, 0, len(created))
		for _, t := range created {
			ids = append(ids, t.ID)
		}
		c.JSON(http.StatusOK, gin.H{"created": len(created), "ids": ids})
	}
}
