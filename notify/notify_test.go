package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizzer-server/models"
)

func TestHubKeepsMostRecent(t *testing.T) {
	h := NewHub(2)
	Info(h, "one")
	Warning(h, "two")
	Error(h, "three")

	got := h.Recent()
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Message)
	assert.Equal(t, models.NoticeError, got[1].Level)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Capture{}, &Capture{}
	Success(Multi{a, nil, b}, "done")

	assert.Equal(t, []string{"done"}, a.Messages())
	assert.Equal(t, []models.NoticeLevel{models.NoticeSuccess}, b.Levels())
}

func TestNilSinkIsIgnored(t *testing.T) {
	assert.NotPanics(t, func() { Info(nil, "nobody listens") })
}
