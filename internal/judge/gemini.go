package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// Ensure Gemini implements Judge at compile time.
var _ Judge = (*Gemini)(nil)

// Gemini implements Judge using the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini-backed judge.
func NewGemini(client *genai.Client) *Gemini {
	return &Gemini{client: client}
}

type geminiVerdict struct {
	Supports   bool   `json:"supports"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

func (g *Gemini) Judge(ctx context.Context, claim, citedCode string) (Judgment, error) {
	prompt := buildJudgePrompt(claim, citedCode)

	result, err := g.client.Models.GenerateContent(ctx, geminiModel,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: prompt}},
		}},
		judgeConfig(),
	)
	if err != nil {
		return Judgment{}, fmt.Errorf("judge call: %w", err)
	}
	if result == nil {
		return Judgment{}, fmt.Errorf("judge returned nil result")
	}

	var verdict geminiVerdict
	if err := json.Unmarshal([]byte(result.Text()), &verdict); err != nil {
		return Judgment{}, fmt.Errorf("parse judge verdict: %w", err)
	}
	conf := verdict.Confidence
	switch conf {
	case "high", "medium", "low":
	default:
		conf = "low"
	}
	return Judgment{
		Supports:   verdict.Supports,
		Confidence: conf,
		Reasoning:  verdict.Reasoning,
	}, nil
}

func judgeConfig() *genai.GenerateContentConfig {
	temp := float32(0.0)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You judge whether cited source code supports a claim made in documentation. " +
					"Base your verdict only on the cited code. Respond with JSON: " +
					`{"supports": bool, "confidence": "high"|"medium"|"low", "reasoning": string}.`,
			}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
}

func buildJudgePrompt(claim, citedCode string) string {
	var sb strings.Builder
	sb.WriteString("<claim>\n")
	sb.WriteString(claim)
	sb.WriteString("\n</claim>\n\n<cited_code>\n")
	sb.WriteString(citedCode)
	sb.WriteString("\n</cited_code>\n")
	return sb.String()
}
