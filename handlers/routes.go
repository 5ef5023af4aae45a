package handlers

import (
	"github.com/gin-gonic/gin"

	"quizzer-server/db"
	"quizzer-server/ingestion"
	"quizzer-server/notify"
	"quizzer-server/session"
)

// Deps are the services the handlers are wired to.
type Deps struct {
	Store     *db.Observable
	Workspace *session.Workspace
	Pipeline  *ingestion.Pipeline
	Hub       *notify.Hub
}

// Register mounts the overview page and the v1 API on router.
func Register(router *gin.Engine, d Deps) {
	router.GET("/", Overview(d.Store, d.Workspace, d.Hub))

	apiV1 := router.Group("/api/v1")
	{
		tests := apiV1.Group("/tests")
		tests.GET("", ListTests(d.Store))
		tests.DELETE("", ClearTests(d.Store))
		tests.GET("/stream", StreamTests(d.Store))
		tests.POST("/bulk_delete", BulkDeleteTests(d.Store))
		tests.GET("/:id", GetTest(d.Store))
		tests.PATCH("/:id", RenameTest(d.Store))
		tests.DELETE("/:id", DeleteTest(d.Store))
		tests.GET("/:id/export", ExportTest(d.Store))
		tests.GET("/:id/summary", GetTestSummary(d.Store))
		tests.POST("/:id/clone", CloneTest(d.Workspace))
		tests.POST("/:id/mistakes", MistakesTest(d.Workspace))
		tests.POST("/:id/regenerate", RegenerateTest(d.Store, d.Pipeline))

		sess := apiV1.Group("/session")
		sess.GET("", GetSession(d.Workspace))
		sess.POST("/select", SelectTest(d.Workspace))
		sess.POST("/start", StartSession(d.Workspace))
		sess.POST("/retake", RetakeSession(d.Workspace))
		sess.POST("/keys", PressKey(d.Workspace))
		sess.POST("/answers", ToggleAnswer(d.Workspace))
		sess.POST("/marks", ToggleMark(d.Workspace))
		sess.POST("/goto", GotoQuestion(d.Workspace))
		sess.POST("/search", SearchSession(d.Workspace))
		sess.POST("/submit", SubmitSession(d.Workspace))
		sess.POST("/review", ReviewSession(d.Workspace))
		sess.POST("/back", BackToSummary(d.Workspace))

		ingest := apiV1.Group("/ingest")
		ingest.POST("", IngestFiles(d.Pipeline))
		ingest.POST("/combined", IngestCombined(d.Pipeline))
		ingest.POST("/commit", CommitJobs(d.Pipeline))
		ingest.GET("/jobs", ListJobs(d.Pipeline))
		ingest.GET("/jobs/:id", GetJob(d.Pipeline))
		ingest.DELETE("/jobs/:id", RemoveJob(d.Pipeline))
		ingest.POST("/jobs/:id/cancel", CancelJob(d.Pipeline))
		ingest.POST("/jobs/:id/repair", RepairJob(d.Pipeline))

		apiV1.GET("/notices", ListNotices(d.Hub))
	}
}
