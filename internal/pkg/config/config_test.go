package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CP_STR", "  value ")
	t.Setenv("CP_BOOL", "true")
	t.Setenv("CP_BAD_BOOL", "maybe")
	t.Setenv("CP_INT", "42")
	t.Setenv("CP_BAD_INT", "forty")
	t.Setenv("CP_DUR", "90s")
	t.Setenv("CP_CSV", " a, ,b ,")
	t.Setenv("CP_EMPTY_CSV", " , ")

	assert.Equal(t, "value", Env("CP_STR", "def"))
	assert.Equal(t, "def", Env("CP_UNSET", "def"))
	assert.True(t, BoolEnv("CP_BOOL", false))
	assert.True(t, BoolEnv("CP_BAD_BOOL", true))
	assert.Equal(t, 42, IntEnv("CP_INT", 0))
	assert.Equal(t, 7, IntEnv("CP_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, DurationEnv("CP_DUR", 0))
	assert.Equal(t, []string{"a", "b"}, CSVEnv("CP_CSV", nil))
	assert.Equal(t, []string{"x"}, CSVEnv("CP_EMPTY_CSV", []string{"x"}))
}

func TestMustEnvPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for missing env")
		}
	}()
	MustEnv("CP_DEFINITELY_UNSET")
}

func TestLoadAPIReportsAllMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("STORAGE_LOCAL_ROOT", "")

	_, err := LoadAPI()
	require.Error(t, err)
	for _, k := range []string{"DATABASE_URL", "REDIS_ADDR", "STORAGE_LOCAL_ROOT"} {
		assert.True(t, strings.Contains(err.Error(), k), "expected %s in %q", k, err)
	}
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cardpress")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("STORAGE_PROVIDER", "gdrive")
	t.Setenv("GDRIVE_CLIENT_ID", "id")
	t.Setenv("GDRIVE_CLIENT_SECRET", "secret")
	t.Setenv("GDRIVE_REFRESH_TOKEN", "token")
	t.Setenv("FONT_DIRS", "/fonts,/more-fonts")
	t.Setenv("JOB_QUEUE_NAME", "")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "gdrive", cfg.Storage.Provider)
	assert.Equal(t, "token", cfg.Storage.GDriveRefreshToken)
	assert.Equal(t, DefaultQueueName, cfg.Redis.QueueName)
	assert.Equal(t, []string{"/fonts", "/more-fonts"}, cfg.Render.FontDirs)
	assert.Equal(t, 90, cfg.Render.JPEGQuality)
}
