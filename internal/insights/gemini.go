package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"finsight/internal/core"
)

const DefaultModel = "gemini-1.5-flash"

// contentGenerator is the part of *genai.GenerativeModel the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini generates insights with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  contentGenerator
}

// NewGemini creates a Gemini generator for model (DefaultModel when empty).
func NewGemini(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.4)
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	return &Gemini{client: client, model: m}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Generate(ctx context.Context, snap core.Snapshot) (core.InsightBundle, error) {
	prompt, err := buildPrompt(snap)
	if err != nil {
		return core.InsightBundle{}, err
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return core.InsightBundle{}, fmt.Errorf("gemini generate: %w", err)
	}
	return parseBundle(responseText(resp))
}

const systemPrompt = `You are a personal finance assistant. Analyse the user's transactions,
savings goals and totals and reply with JSON only, shaped as:
{"summary": string, "insights": [{"id": string, "type": "tip"|"warning"|"success"|"info",
"title": string, "description": string, "category": string,
"actionLabel": string (optional), "actionUrl": string (optional)}]}
Return between 3 and 6 insights. Keep titles under 60 characters.`

func buildPrompt(snap core.Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	var b strings.Builder
	b.WriteString("Financial data:\n")
	b.Write(raw)
	return b.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// parseBundle decodes a model reply, tolerating a markdown code fence
// around the JSON.
func parseBundle(text string) (core.InsightBundle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.InsightBundle{}, errors.New("empty model response")
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var b core.InsightBundle
	if err := json.Unmarshal([]byte(text), &b); err != nil {
		return core.InsightBundle{}, fmt.Errorf("decode model response: %w", err)
	}
	if err := b.Validate(); err != nil {
		return core.InsightBundle{}, err
	}
	return b, nil
}
