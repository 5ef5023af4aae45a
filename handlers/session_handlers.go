package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quizzer-server/keys"
	"quizzer-server/models"
	"quizzer-server/session"
)

// GetSession returns the current session view.
// GET /api/v1/session
func GetSession(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ws.View())
	}
}

// SelectTest selects a test; an empty testId clears the selection.
// POST /api/v1/session/select
func SelectTest(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SelectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		if strings.TrimSpace(req.TestID) == "" {
			ws.Deselect()
			c.JSON(http.StatusOK, ws.View())
			return
		}
		if _, err := ws.Select(c.Request.Context(), req.TestID); err != nil {
			respondError(c, err, "Failed to select test")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// StartSession begins the first attempt.
// POST /api/v1/session/start
func StartSession(ws *session.Workspace) gin.HandlerFunc {
	return beginHandler(ws, ws.Start, "Failed to start test")
}

// RetakeSession begins another attempt from the summary.
// POST /api/v1/session/retake
func RetakeSession(ws *session.Workspace) gin.HandlerFunc {
	return beginHandler(ws, ws.Retake, "Failed to retake test")
}

func beginHandler(ws *session.Workspace, begin func(models.SessionOptions) error, failure string) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, ok := bindOptions(c)
		if !ok {
			return
		}
		if opts.TimeLimit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeLimit must not be negative"})
			return
		}
		if err := begin(opts); err != nil {
			respondError(c, err, failure)
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// PressKey feeds one key press to the live taking or review screen.
// POST /api/v1/session/keys
func PressKey(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.KeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		cmd, err := ws.Press(c.Request.Context(), req.Key)
		if err != nil {
			respondError(c, err, "Failed to handle key")
			return
		}
		c.JSON(http.StatusOK, gin.H{"command": commandJSON(cmd), "session": ws.View()})
	}
}

func commandJSON(cmd keys.Command) gin.H {
	out := gin.H{"kind": cmd.Kind.String()}
	if cmd.N != 0 {
		out["n"] = cmd.N
	}
	if cmd.Query != "" {
		out["query"] = cmd.Query
	}
	return out
}

// ToggleAnswer selects or deselects an answer of the current question by content.
// POST /api/v1/session/answers
func ToggleAnswer(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		if err := ws.Toggle(req.Content); err != nil {
			respondError(c, err, "Failed to toggle answer")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// ToggleMark flips the review mark of the current question.
// POST /api/v1/session/marks
func ToggleMark(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ws.ToggleMark(); err != nil {
			respondError(c, err, "Failed to toggle mark")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// SubmitSession records the running attempt.
// POST /api/v1/session/submit
func SubmitSession(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ws.Submit(c.Request.Context()); err != nil {
			respondError(c, err, "Failed to submit attempt")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// ReviewSession opens the latest attempt for review.
// POST /api/v1/session/review
func ReviewSession(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ws.Review(); err != nil {
			respondError(c, err, "Failed to open review")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// BackToSummary leaves the review.
// POST /api/v1/session/back
func BackToSummary(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ws.Back(); err != nil {
			respondError(c, err, "Failed to leave review")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// SearchSession sets the search query of the live screen.
// POST /api/v1/session/search
func SearchSession(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		if err := ws.Search(req.Query); err != nil {
			respondError(c, err, "Failed to search")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}

// GotoQuestion moves the pointer of the live screen to a 0-based index.
// POST /api/v1/session/goto
func GotoQuestion(ws *session.Workspace) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Index *int `json:"index" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
			return
		}
		if err := ws.Goto(*req.Index); err != nil {
			respondError(c, err, "Failed to move to question")
			return
		}
		c.JSON(http.StatusOK, ws.View())
	}
}
