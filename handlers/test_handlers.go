package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"quizzer-server/db"
	"quizzer-server/exam"
	"quizzer-server/ingestion"
	"quizzer-server/models"
	"quizzer-server/session"
)

// ListTests returns the sidebar rows, newest first.
// GET /api/v1/tests
func ListTests(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tests, err := store.List(c.Request.Context())
		if err != nil {
			respondError(c, err, "Failed to retrieve tests")
			return
		}
		c.JSON(http.StatusOK, db.Summaries(tests))
	}
}

// StreamTests pushes a "tests" event with the sidebar rows after every write.
// GET /api/v1/tests/stream
func StreamTests(obs *db.Observable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sub, err := obs.Subscribe(ctx)
		if err != nil {
			respondError(c, err, "Failed to subscribe to tests")
			return
		}
		defer sub.Close()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case snap, ok := <-sub.C:
				if !ok {
					return false
				}
				c.SSEvent("tests", gin.H{"seq": snap.Seq, "tests": snap.Summaries()})
				return true
			}
		})
	}
}

// GetTest returns a full test.
// GET /api/v1/tests/:id
func GetTest(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err, "Failed to retrieve test")
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// RenameTest changes the name of a test.
// PATCH /api/v1/tests/:id
func RenameTest(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RenameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name must not be empty"})
			return
		}
		id := c.Param("id")
		if err := db.Rename(c.Request.Context(), store, id, name); err != nil {
			respondError(c, err, "Failed to rename test")
			return
		}
		db.LogEvent(c.Request.Context(), store, "store", id, fmt.Sprintf("renamed to %q", name))
		c.JSON(http.StatusOK, gin.H{"id": id, "name": name})
	}
}

// DeleteTest removes one test.
// DELETE /api/v1/tests/:id
func DeleteTest(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := store.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err, "Failed to delete test")
			return
		}
		db.LogEvent(c.Request.Context(), store, "store", id, "deleted")
		c.Status(http.StatusNoContent)
	}
}

// BulkDeleteTests removes every listed test; unknown ids are ignored.
// POST /api/v1/tests/bulk_delete
func BulkDeleteTests(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BulkDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		if err := store.BulkDelete(c.Request.Context(), req.IDs); err != nil {
			respondError(c, err, "Failed to delete tests")
			return
		}
		db.LogEvent(c.Request.Context(), store, "store", strings.Join(req.IDs, ","), fmt.Sprintf("deleted %d tests", len(req.IDs)))
		c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
	}
}

// ClearTests deletes every test.
// DELETE /api/v1/tests
func ClearTests(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Clear(c.Request.Context()); err != nil {
			respondError(c, err, "Failed to delete tests")
			return
		}
		db.LogEvent(c.Request.Context(), store, "store", "*", "deleted all tests")
		c.Status(http.StatusNoContent)
	}
}

// ExportTest downloads the questions of a test as JSON (default) or YAML.
// GET /api/v1/tests/:id/export?format=json|yaml
func ExportTest(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err, "Failed to retrieve test")
			return
		}
		switch format := strings.ToLower(c.DefaultQuery("format", "json")); format {
		case "json":
			c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, t.Name))
			c.IndentedJSON(http.StatusOK, t.Questions)
		case "yaml", "yml":
			out, err := yaml.Marshal(t.Questions)
			if err != nil {
				respondError(c, err, "Failed to encode test")
				return
			}
			c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.yaml"`, t.Name))
			c.Data(http.StatusOK, "application/yaml; charset=utf-8", out)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown export format %q", format)})
		}
	}
}

// bindOptions reads optional SessionOptions; an empty body means defaults.
func bindOptions(c *gin.Context) (models.SessionOptions, bool) {
	var opts models.SessionOptions
	if c.Request.ContentLength == 0 {
		return opts, true
	}
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session options: " + err.Error()})
		return opts, false
	}
	return opts, true
}

// CloneTest makes a reshuffled copy and starts taking it.
// POST /api/v1/tests/:id/clone
func CloneTest(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, ok := bindOptions(c)
		if !ok {
			return
		}
		t, err := ws.CloneTest(c.Request.Context(), c.Param("id"), opts)
		if err != nil {
			respondError(c, err, "Failed to clone test")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"test": db.Summaries([]models.Test{t})[0], "session": ws.View()})
	}
}

// MistakesTest makes a test of the questions last answered wrong and starts taking it.
// POST /api/v1/tests/:id/mistakes
func MistakesTest(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, ok := bindOptions(c)
		if !ok {
			return
		}
		t, err := ws.Mistakes(c.Request.Context(), c.Param("id"), opts)
		if err != nil {
			respondError(c, err, "Failed to create test from mistakes")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"test": db.Summaries([]models.Test{t})[0], "session": ws.View()})
	}
}

// RegenerateTest queues a new generation from the stored source text.
// POST /api/v1/tests/:id/regenerate
func RegenerateTest(store db.Store, pipeline *ingestion.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err, "Failed to retrieve test")
			return
		}
		job, err := pipeline.RegenerateTest(t)
		if err != nil {
			respondError(c, err, "Failed to regenerate test")
			return
		}
		log.Printf("Regenerating test %s as job %s", t.ID, job.ID)
		c.JSON(http.StatusAccepted, job)
	}
}

// GetTestSummary returns score, accuracy and per-question stats of the latest attempt.
// GET /api/v1/tests/:id/summary
func GetTestSummary(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err, "Failed to retrieve test")
			return
		}
		summary, err := exam.Summarize(t)
		if err != nil {
			respondError(c, err, "Failed to summarize test")
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
