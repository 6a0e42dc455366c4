package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nao1215/gridwatch/internal/model"
)

// Defaults for the Anthropic summarizer.
const (
	DefaultMaxTokens   = 1024
	DefaultMaxFindings = 200
)

// ErrEmptyResponse is returned when the model answers without text.
var ErrEmptyResponse = errors.New("model returned no text")

// MessageRequest is a single-turn request to a messages API.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    string
	Prompt    string
}

// MessagesClient sends one request and returns the concatenated text blocks.
type MessagesClient interface {
	CreateMessage(ctx context.Context, req MessageRequest) (string, error)
}

// sdkClient implements MessagesClient with anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewSDKClient creates a MessagesClient for the Anthropic API.
func NewSDKClient(apiKey string, opts ...option.RequestOption) MessagesClient {
	return &sdkClient{
		client: sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// AnthropicSummarizer asks a Claude model to summarize findings.
type AnthropicSummarizer struct {
	client      MessagesClient
	model       string
	maxTokens   int64
	maxFindings int
}

// AnthropicOption configures an AnthropicSummarizer.
type AnthropicOption func(*AnthropicSummarizer)

// WithMaxTokens limits the answer length.
func WithMaxTokens(n int64) AnthropicOption {
	return func(s *AnthropicSummarizer) {
		s.maxTokens = n
	}
}

// WithMaxFindings limits how many findings are sent in one prompt.
func WithMaxFindings(n int) AnthropicOption {
	return func(s *AnthropicSummarizer) {
		s.maxFindings = n
	}
}

// NewAnthropicSummarizer creates a summarizer using client and model.
func NewAnthropicSummarizer(client MessagesClient, model string, opts ...AnthropicOption) *AnthropicSummarizer {
	s := &AnthropicSummarizer{
		client:      client,
		model:       model,
		maxTokens:   DefaultMaxTokens,
		maxFindings: DefaultMaxFindings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const systemPrompt = `You review a table of a care management application for cells that
should have been filled in. You receive the current empty cells as JSON.
Answer with a single JSON object and nothing else:
{"summary": "<three sentences at most, for the office team>",
 "notes": {"<finding id>": "<short hint what is probably missing>"}}
Only add notes where you have a useful hint. Do not invent finding ids.`

// promptFinding is what the model sees of a finding. Raw cell values are
// left out.
type promptFinding struct {
	ID        string `json:"id"`
	Table     string `json:"table,omitempty"`
	Row       string `json:"row"`
	Column    string `json:"column"`
	Status    string `json:"status"`
	FirstSeen string `json:"first_seen"`
}

type promptInput struct {
	Open      int             `json:"open"`
	New       int             `json:"new"`
	Resolved  int             `json:"resolved"`
	ByColumn  map[string]int  `json:"by_column"`
	Partial   bool            `json:"partial,omitempty"`
	Findings  []promptFinding `json:"findings"`
	Truncated int             `json:"truncated,omitempty"`
}

type answer struct {
	Summary string            `json:"summary"`
	Notes   map[string]string `json:"notes"`
}

// Summarize implements Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, findings []model.Finding, stats model.Stats) (Summary, error) {
	prompt, known, err := s.buildPrompt(findings, stats)
	if err != nil {
		return Summary{}, err
	}

	text, err := s.client.CreateMessage(ctx, MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    systemPrompt,
		Prompt:    prompt,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize findings: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return Summary{}, ErrEmptyResponse
	}
	return parseAnswer(text, known), nil
}

func (s *AnthropicSummarizer) buildPrompt(findings []model.Finding, stats model.Stats) (string, map[string]bool, error) {
	in := promptInput{
		Open:     stats.Open,
		New:      stats.New,
		Resolved: stats.Resolved,
		ByColumn: stats.ByColumn,
		Partial:  stats.Partial,
		Findings: []promptFinding{},
	}
	known := make(map[string]bool)
	for _, f := range findings {
		if !f.IsOpen() {
			continue
		}
		if len(in.Findings) == s.maxFindings {
			in.Truncated++
			continue
		}
		row := f.RowLabel
		if row == "" {
			row = f.RowIdentity
		}
		in.Findings = append(in.Findings, promptFinding{
			ID:        f.ID,
			Table:     f.Table,
			Row:       row,
			Column:    f.ColumnName,
			Status:    string(f.Status),
			FirstSeen: f.FirstSeenRun.UTC().Format("2006-01-02 15:04"),
		})
		known[f.ID] = true
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode prompt: %w", err)
	}
	return string(data), known, nil
}

// parseAnswer reads the JSON object in text. A model that ignored the format
// still yields its text as the summary.
func parseAnswer(text string, known map[string]bool) Summary {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var a answer
		if err := json.Unmarshal([]byte(text[start:end+1]), &a); err == nil && strings.TrimSpace(a.Summary) != "" {
			notes := make(map[string]string)
			for id, note := range a.Notes {
				if known[id] && strings.TrimSpace(note) != "" {
					notes[id] = strings.TrimSpace(note)
				}
			}
			return Summary{Text: strings.TrimSpace(a.Summary), Notes: notes}
		}
	}
	return Summary{Text: strings.TrimSpace(text), Notes: map[string]string{}}
}
