package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			cfg: config.LLMConfig{
				APIKey: "test-key",
			},
			wantErr: false,
		},
		{
			name: "valid config with model",
			cfg: config.LLMConfig{
				APIKey: "test-key",
				Model:  "gpt-4",
			},
			wantErr: false,
		},
		{
			name:    "missing API key",
			cfg:     config.LLMConfig{},
			wantErr: true,
			errMsg:  "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `[{"name": "Jane"}]`,
			expected: `[{"name": "Jane"}]`,
		},
		{
			name:     "JSON with json code block",
			input:    "```json\n[{\"name\": \"Jane\"}]\n```",
			expected: `[{"name": "Jane"}]`,
		},
		{
			name:     "JSON with plain code block",
			input:    "```\n[{\"name\": \"Jane\"}]\n```",
			expected: `[{"name": "Jane"}]`,
		},
		{
			name:     "JSON with whitespace",
			input:    "  \n[{\"name\": \"Jane\"}]\n  ",
			expected: `[{"name": "Jane"}]`,
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: "[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cleanJSONResponse(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestObjectToString(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{name: "string value", input: " Doctor ", expected: "Doctor"},
		{name: "integer as float64", input: float64(42), expected: "42"},
		{name: "float value", input: float64(3.5), expected: "3.5"},
		{name: "int value", input: 100, expected: "100"},
		{name: "bool", input: true, expected: "true"},
		{name: "nil value", input: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, objectToString(tt.input))
		})
	}
}

func TestParseCandidates(t *testing.T) {
	t.Run("wrapped object", func(t *testing.T) {
		content := `{"characters": [
			{"name": " Jane Watson ", "occupation": "Doctor", "age": 34, "location": "London",
			 "status": "Alive", "relevance": "Major", "briefDescription": "A surgeon.",
			 "relationships": [{"targetName": "Tom", "type": "family", "description": "brother"}, {"targetName": " ", "type": "other"}]},
			{"name": "Tom"}
		]}`
		got, err := ParseCandidates(content)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, "Jane Watson", got[0].Name)
		assert.Equal(t, "34", got[0].Age)
		assert.Equal(t, "Doctor", got[0].Occupation)
		assert.Equal(t, "Major", got[0].Relevance)
		require.Len(t, got[0].Relationships, 1, "relationships without a target are dropped")
		assert.Equal(t, "Tom", got[0].Relationships[0].TargetName)
		assert.Equal(t, "family", got[0].Relationships[0].Type)

		assert.Equal(t, "Tom", got[1].Name)
		assert.Empty(t, got[1].Occupation)
	})

	t.Run("bare array in code block", func(t *testing.T) {
		got, err := ParseCandidates("```json\n[{\"name\": \"Jane\"}]\n```")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Jane", got[0].Name)
	})

	t.Run("empty list", func(t *testing.T) {
		got, err := ParseCandidates(`{"characters": []}`)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	malformed := []struct {
		name    string
		content string
	}{
		{name: "prose", content: "I could not find any characters."},
		{name: "empty", content: ""},
		{name: "truncated", content: `{"characters": [{"name": "Jane"`},
		{name: "missing field", content: `{"people": []}`},
		{name: "wrong shape", content: `[1, 2, 3]`},
	}
	for _, tt := range malformed {
		t.Run("malformed "+tt.name, func(t *testing.T) {
			got, err := ParseCandidates(tt.content)
			require.ErrorIs(t, err, entities.ErrMalformedExtraction)
			assert.Nil(t, got)
		})
	}
}

// chatServer serves one canned chat completion.
func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "Chapter text", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ExtractCharacters(t *testing.T) {
	srv := chatServer(t, `{"characters": [{"name": "Jane", "age": "30"}]}`, http.StatusOK)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := client.ExtractCharacters(context.Background(), "Chapter text")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane", got[0].Name)
	assert.Equal(t, "30", got[0].Age)
}

func TestClient_ExtractCharacters_Malformed(t *testing.T) {
	srv := chatServer(t, "Sorry, I can't help with that.", http.StatusOK)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.ExtractCharacters(context.Background(), "Chapter text")
	require.ErrorIs(t, err, entities.ErrMalformedExtraction)
}

func TestClient_ExtractCharacters_APIError(t *testing.T) {
	srv := chatServer(t, "", http.StatusInternalServerError)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.ExtractCharacters(context.Background(), "Chapter text")
	require.Error(t, err)
	assert.NotErrorIs(t, err, entities.ErrMalformedExtraction)
}
