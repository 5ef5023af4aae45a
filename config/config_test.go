package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUIZZER_SERVER_PORT", ":9999")
	t.Setenv("QUIZZER_GEMINI_MODEL", "gemini-test")
	t.Setenv("QUIZZER_SESSION_JUMP_DEBOUNCE", "300ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ServerPort)
	assert.Equal(t, "gemini-test", cfg.Gemini.Model)
	assert.Equal(t, 300*time.Millisecond, cfg.Session.JumpDebounce)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 120*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.JobTTL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		DB:        DBConfig{Driver: "sqlite"},
		Session:   SessionConfig{Tick: time.Second},
		Ingestion: IngestionConfig{PruneInterval: time.Minute},
	}
	require.NoError(t, cfg.Validate())

	cfg.DB.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}
