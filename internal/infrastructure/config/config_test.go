package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "library",
			expected: "library",
		},
		{
			name:     "uppercase converted",
			input:    "MyBooks",
			expected: "mybooks",
		},
		{
			name:     "spaces to underscores",
			input:    "my books",
			expected: "my_books",
		},
		{
			name:     "hyphens to underscores",
			input:    "my-books",
			expected: "my_books",
		},
		{
			name:     "special characters removed",
			input:    "my@books!",
			expected: "mybooks",
		},
		{
			name:     "consecutive underscores collapsed",
			input:    "my--books",
			expected: "my_books",
		},
		{
			name:     "leading trailing underscores trimmed",
			input:    "-my-books-",
			expected: "my_books",
		},
		{
			name:     "empty string returns default",
			input:    "",
			expected: "default",
		},
		{
			name:     "only special chars returns default",
			input:    "!!!",
			expected: "default",
		},
		{
			name:     "complex mixed input",
			input:    "War and Peace (Vol. 1)",
			expected: "war_and_peace_vol_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}

func TestGenerateCollectionName(t *testing.T) {
	assert.Equal(t, "tracker_my_books", GenerateCollectionName("My Books"))
	assert.Equal(t, "tracker_default", GenerateCollectionName(""))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 24000, cfg.LLM.MaxChapterChars)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	assert.Equal(t, uint64(1536), cfg.Embedder.Dimensions)
	assert.False(t, cfg.Qdrant.Enabled)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, DefaultDatabaseFile, cfg.SQLite.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestConfigPaths(t *testing.T) {
	assert.Equal(t, "/home/user/books/.tracker", ConfigDir("/home/user/books"))
	assert.Equal(t, "/home/user/books/.tracker/config.yaml", ConfigFilePath("/home/user/books"))
}

func TestLoad_DefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TRACKER_LOG_LEVEL", "")
	require.NoError(t, WriteDefault(dir))
	assert.True(t, Exists(dir))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigDir, DefaultDatabaseFile), cfg.SQLite.Path)
	assert.Equal(t, "tracker_characters", cfg.Qdrant.Collection)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxInterval)
}

func TestLoad_Overrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Library")
	require.NoError(t, os.MkdirAll(ConfigDir(dir), 0755))
	yaml := `
llm:
  model: gpt-4o
qdrant:
  enabled: true
  collection: ""
sqlite:
  path: /tmp/elsewhere.db
log:
  level: warn
`
	require.NoError(t, os.WriteFile(ConfigFilePath(dir), []byte(yaml), 0644))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("QDRANT_API_KEY", "qd-test")
	t.Setenv("TRACKER_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", Default().LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, "qd-test", cfg.Qdrant.APIKey)
	assert.True(t, cfg.Qdrant.Enabled)
	assert.Equal(t, "tracker_my_library", cfg.Qdrant.Collection)
	assert.Equal(t, "/tmp/elsewhere.db", cfg.SQLite.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tracker init")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(dir), 0755))
		require.NoError(t, os.WriteFile(ConfigFilePath(dir), []byte("llm: [unclosed"), 0644))
		_, err := Load(dir)
		require.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(dir), 0755))
		require.NoError(t, os.WriteFile(ConfigFilePath(dir), []byte("llm:\n  max_chapter_chars: -5\n"), 0644))
		_, err := Load(dir)
		require.Error(t, err)
	})
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDefault(dir))
	require.Error(t, WriteDefault(dir))
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.LLM.Model = "custom"
	cfg.Retry.MaxInterval = 5 * time.Second
	require.NoError(t, Write(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", loaded.LLM.Model)
	assert.Equal(t, 5*time.Second, loaded.Retry.MaxInterval)
}
