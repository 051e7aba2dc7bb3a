package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/types"
	"github.com/yungbote/debrief-backend/internal/utils"
)

type DebriefResult struct {
	Text     string
	Sections []types.DebriefSection
}

// SummaryProvider turns a transcript into a structured debrief.
type SummaryProvider interface {
	GenerateDebrief(ctx context.Context, transcriptText, mode, title string) (*DebriefResult, error)
}

type summaryProvider struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string
	schema     *jsonschema.Schema
}

func NewSummaryProvider(log *logger.Logger) (SummaryProvider, error) {
	serviceLog := log.With("service", "SummaryProvider")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	baseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1", log)
	model := utils.GetEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini", log)

	schema, err := compileDebriefSchema()
	if err != nil {
		return nil, err
	}

	return &summaryProvider{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		log:        serviceLog,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		schema:     schema,
	}, nil
}

// debriefJSONSchema constrains the model output; the same schema validates
// it locally before anything is persisted.
func debriefJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "minLength": 1},
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"title":       map[string]any{"type": "string", "minLength": 1},
						"content":     map[string]any{"type": "string"},
						"order_index": map[string]any{"type": "integer", "minimum": 0},
					},
					"required": []string{"title", "content", "order_index"},
				},
			},
		},
		"required": []string{"summary", "sections"},
	}
}

func compileDebriefSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(debriefJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal debrief schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("debrief.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add debrief schema: %w", err)
	}
	schema, err := compiler.Compile("debrief.json")
	if err != nil {
		return nil, fmt.Errorf("compile debrief schema: %w", err)
	}
	return schema, nil
}

var modeInstructions = map[string]string{
	types.RecordingModeGeneral:   "Summarize the key points, decisions and follow-ups.",
	types.RecordingModeSales:     "Focus on the prospect's needs, objections, buying signals and agreed next steps.",
	types.RecordingModeInterview: "Focus on the candidate's answers, strengths, concerns and an overall assessment.",
	types.RecordingModeMeeting:   "Focus on agenda items, decisions made, owners and action items with deadlines.",
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *summaryProvider) GenerateDebrief(ctx context.Context, transcriptText, mode, title string) (*DebriefResult, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return nil, fmt.Errorf("empty transcript text")
	}
	instr, ok := modeInstructions[mode]
	if !ok {
		instr = modeInstructions[types.RecordingModeGeneral]
	}

	system := "You write debriefs of recorded conversations. Respond with a single JSON object " +
		"matching: {\"summary\": string, \"sections\": [{\"title\": string, \"content\": string, \"order_index\": int}]}. " +
		instr
	user := fmt.Sprintf("Title: %s\n\nTranscript:\n%s", title, transcriptText)

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("summary provider read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary provider status %d: %s", resp.StatusCode, truncateForLog(raw))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("summary provider decode: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("summary provider error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("summary provider returned no choices")
	}

	return p.parseDebriefContent(cr.Choices[0].Message.Content)
}

func (p *summaryProvider) parseDebriefContent(content string) (*DebriefResult, error) {
	content = strings.TrimSpace(content)
	// Some models fence the JSON despite json_object mode.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("debrief output is not valid JSON: %w", err)
	}
	if err := p.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("debrief output does not match schema: %w", err)
	}

	var out struct {
		Summary  string                 `json:"summary"`
		Sections []types.DebriefSection `json:"sections"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("debrief output decode: %w", err)
	}
	sort.SliceStable(out.Sections, func(i, j int) bool {
		return out.Sections[i].OrderIndex < out.Sections[j].OrderIndex
	})
	return &DebriefResult{Text: out.Summary, Sections: out.Sections}, nil
}

func truncateForLog(b []byte) string {
	s := string(b)
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
