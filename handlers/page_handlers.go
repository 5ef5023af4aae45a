package handlers

import (
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"quizzer-server/db"
	"quizzer-server/notify"
	"quizzer-server/session"
)

// NewRenderer loads the HTML pages from dir.
func NewRenderer(dir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	r.AddFromFiles("overview", filepath.Join(dir, "layout.html"), filepath.Join(dir, "overview.html"))
	return r
}

// Overview renders the test list with labels, the session state and recent activity.
// GET /
func Overview(store db.Store, ws *session.Workspace, hub *notify.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tests, err := store.List(ctx)
		if err != nil {
			log.Printf("Error listing tests for overview: %v", err)
		}
		events, err := store.RecentEvents(ctx, 10)
		if err != nil {
			log.Printf("Error fetching recent events: %v", err)
		}
		c.HTML(http.StatusOK, "overview", gin.H{
			"Title":   "Quizzer",
			"Tests":   db.Summaries(tests),
			"Session": ws.View(),
			"Events":  events,
			"Notices": hub.Recent(),
		})
	}
}

// ListNotices returns the retained notices, oldest first.
// GET /api/v1/notices
func ListNotices(hub *notify.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Recent())
	}
}
