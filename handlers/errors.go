package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizzer-server/db"
	"quizzer-server/exam"
	"quizzer-server/ingestion"
	"quizzer-server/session"
	"quizzer-server/taking"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, ingestion.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrAlreadyExists),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNoTest),
		errors.Is(err, taking.ErrFinished),
		errors.Is(err, exam.ErrNotTaken),
		errors.Is(err, exam.ErrNoMistakes):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingestion.ErrUnparseable),
		errors.Is(err, ingestion.ErrInvalidQuestion),
		errors.Is(err, ingestion.ErrNotRepairable),
		errors.Is(err, ingestion.ErrNoSource),
		errors.Is(err, ingestion.ErrNoFiles),
		errors.Is(err, taking.ErrUnknownAnswer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, exam.ErrSave):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes it as {"error": ...}. Server errors get
// the generic message; client errors carry the error text.
func respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Printf("%s: %v", msg, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
