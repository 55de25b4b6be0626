package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel reads receipt photos well and answers quickly
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Extract analyzes the message and optional receipt image
func (g *Gemini) Extract(ctx context.Context, in Input) Result {
	return extract(ctx, g, in)
}

// geminiParts puts the instruction first and the inline media, if any, second
func geminiParts(prompt string, media []byte, mimeType string) []genai.Part {
	parts := []genai.Part{genai.Text(prompt)}
	if len(media) > 0 && mimeType != "" {
		parts = append(parts, genai.Blob{MIMEType: mimeType, Data: media})
	}
	return parts
}

func (g *Gemini) complete(ctx context.Context, prompt string, media []byte, mimeType string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, geminiParts(prompt, media, mimeType)...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
