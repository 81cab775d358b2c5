// Package openai provides a CharacterExtractor implementation using OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
	"github.com/ersonp/book-character-tracker/internal/infrastructure/config"
)

const extractionPrompt = `You are a literary analyst. Identify every character who appears or is mentioned in the given chapter of a novel.

For each character, return:
- name: the fullest name used in this chapter
- occupation: job or role, or "Unknown"
- age: age or age range, or "Unknown"
- location: where the character is during this chapter, or "Unknown"
- status: "Alive", "Dead" or "Unknown"
- relevance: "Major", "Supporting" or "Minor" for this chapter
- briefDescription: one sentence about what the character does in this chapter
- relationships: other characters from this chapter they relate to, each with
  targetName, type (family, romantic, conflict, professional, friendship, other) and description

Only use information from this chapter. Do not guess about later events.

Return ONLY a JSON object of the form {"characters": [...]}, no other text.

Example:
Input: "Dr. Jane Watson, 34, stitched her brother Tom's arm in the London clinic."
Output: {"characters": [
  {"name": "Jane Watson", "occupation": "Doctor", "age": "34", "location": "London", "status": "Alive", "relevance": "Major",
   "briefDescription": "Treats her brother's wound.", "relationships": [{"targetName": "Tom", "type": "family", "description": "brother"}]},
  {"name": "Tom", "occupation": "Unknown", "age": "Unknown", "location": "London", "status": "Alive", "relevance": "Supporting",
   "briefDescription": "Has his arm stitched.", "relationships": [{"targetName": "Jane Watson", "type": "family", "description": "sister"}]}
]}`

// Client implements the CharacterExtractor interface using OpenAI.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI extraction client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// ExtractCharacters asks the model for the characters of one chapter.
func (c *Client) ExtractCharacters(ctx context.Context, chapterText string) ([]entities.CandidateCharacter, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: chapterText,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return ParseCandidates(resp.Choices[0].Message.Content)
}

// ParseCandidates decodes extractor output. Both a bare JSON array and an
// object with a "characters" array are accepted. Anything else fails with
// entities.ErrMalformedExtraction.
func ParseCandidates(content string) ([]entities.CandidateCharacter, error) {
	content = cleanJSONResponse(content)

	var raw []rawCandidate
	switch {
	case strings.HasPrefix(content, "["):
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v (response: %s)", entities.ErrMalformedExtraction, err, content)
		}
	case strings.HasPrefix(content, "{"):
		var wrapper struct {
			Characters *[]rawCandidate `json:"characters"`
		}
		if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v (response: %s)", entities.ErrMalformedExtraction, err, content)
		}
		if wrapper.Characters == nil {
			return nil, fmt.Errorf("%w: missing characters field (response: %s)", entities.ErrMalformedExtraction, content)
		}
		raw = *wrapper.Characters
	default:
		return nil, fmt.Errorf("%w: not JSON (response: %s)", entities.ErrMalformedExtraction, content)
	}

	candidates := make([]entities.CandidateCharacter, 0, len(raw))
	for i := range raw {
		candidates = append(candidates, raw[i].toCandidate())
	}
	return candidates, nil
}

// rawCandidate is the JSON structure for extracted characters. Free-form
// fields are decoded loosely because models return numbers for ages.
type rawCandidate struct {
	Name             string            `json:"name"`
	Occupation       interface{}       `json:"occupation"`
	Age              interface{}       `json:"age"`
	Location         interface{}       `json:"location"`
	Status           string            `json:"status"`
	Relevance        string            `json:"relevance"`
	BriefDescription string            `json:"briefDescription"`
	Relationships    []rawRelationship `json:"relationships"`
}

type rawRelationship struct {
	TargetName  string `json:"targetName"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (r *rawCandidate) toCandidate() entities.CandidateCharacter {
	cand := entities.CandidateCharacter{
		Name:             strings.TrimSpace(r.Name),
		Occupation:       objectToString(r.Occupation),
		Age:              objectToString(r.Age),
		Location:         objectToString(r.Location),
		Status:           r.Status,
		Relevance:        r.Relevance,
		BriefDescription: strings.TrimSpace(r.BriefDescription),
	}
	for _, rel := range r.Relationships {
		if strings.TrimSpace(rel.TargetName) == "" {
			continue
		}
		cand.Relationships = append(cand.Relationships, entities.CandidateRelationship{
			TargetName:  strings.TrimSpace(rel.TargetName),
			Type:        rel.Type,
			Description: rel.Description,
		})
	}
	return cand
}

// objectToString converts a loosely typed field to string (handles numbers from LLM).
func objectToString(obj interface{}) string {
	switch v := obj.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int(v)) {
			return strconv.Itoa(int(v))
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
