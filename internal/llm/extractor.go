// Package llm provides LLM-based structured field extraction for the paper
// corpus service.
//
// This package defines the abstractions and prompt engineering required to
// pull caller-specified data fields (sample sizes, methods, datasets, ...)
// out of paper full text or abstracts using large language models (OpenAI,
// Anthropic). Results carry token usage and cost annotations so callers can
// budget runs.
//
// Example usage:
//
//	extractor, _ := llm.NewFieldExtractor(cfg)
//	req := llm.ExtractionRequest{
//		Title:    paper.Title,
//		Markdown: markdown,
//		Requirements: []domain.ExtractionRequirement{
//			{Name: "sample_size", Description: "Number of subjects", Format: "integer", Required: true},
//		},
//	}
//	result, err := extractor.ExtractFields(ctx, req)
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/litforge/paper-corpus-service/internal/domain"
)

// maxMarkdownChars bounds how much paper text goes into one prompt. Longer
// documents are cut at this boundary with a truncation marker.
const maxMarkdownChars = 60000

// ExtractionRequest contains parameters for field extraction.
type ExtractionRequest struct {
	// Title is the paper title, included for context.
	Title string

	// Markdown is the paper content (full text or synthesized abstract).
	Markdown string

	// Requirements describe the fields to extract.
	Requirements []domain.ExtractionRequirement
}

// ExtractionResult contains the extracted fields and usage metadata.
type ExtractionResult struct {
	// Fields maps requirement name to the extracted value. A requirement
	// the model could not satisfy maps to an empty string.
	Fields map[string]string `json:"fields"`

	// Reasoning is the LLM's explanation of its extraction choices (optional).
	Reasoning string `json:"reasoning,omitempty"`

	// Model is the LLM model used.
	Model string `json:"model,omitempty"`

	// InputTokens is the number of input tokens used.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of output tokens used.
	OutputTokens int `json:"output_tokens"`

	// TokensEstimated is true when the provider reported only a combined
	// token count and the input/output numbers are a configured-ratio split.
	TokensEstimated bool `json:"tokens_estimated,omitempty"`

	// CostUSD is the estimated API cost of the call, computed from the
	// configured per-token prices. Zero when no prices are configured.
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// FilledFields returns how many requirements received a non-empty value.
func (r *ExtractionResult) FilledFields() int {
	n := 0
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// FieldExtractor defines the interface for LLM-based field extraction.
//
// Implementations should handle provider-specific API calls, response parsing,
// and error handling while conforming to this unified interface.
type FieldExtractor interface {
	// ExtractFields extracts the requested fields from the given paper text.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Parse the LLM response as JSON
	//   - Return wrapped errors with provider context
	ExtractFields(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// llmResponse is the expected JSON structure from LLM responses.
type llmResponse struct {
	Fields    map[string]string `json:"fields"`
	Reasoning string            `json:"reasoning,omitempty"`
}

// BuildExtractionPrompt builds the system and user prompts for field
// extraction. The system prompt instructs the LLM on its role and response
// format. The user prompt carries the requirement list and the paper text.
func BuildExtractionPrompt(req ExtractionRequest) (systemPrompt, userPrompt string) {
	systemPrompt = buildSystemPrompt()
	userPrompt = buildUserPrompt(req)
	return systemPrompt, userPrompt
}

// buildSystemPrompt constructs the system-level instructions for the LLM.
func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a research data extraction specialist with deep expertise ")
	sb.WriteString("in reading academic papers. Your task is to extract specific, ")
	sb.WriteString("precisely defined data fields from paper text so they can be ")
	sb.WriteString("stored in a structured corpus.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"fields": {"field_name": "extracted value"}, "reasoning": "Brief explanation of where the values came from"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Guidelines for extraction:\n")
	sb.WriteString("1. Extract values verbatim from the text where possible; normalize units only when the requested format demands it.\n")
	sb.WriteString("2. If a field cannot be determined from the text, use an empty string as its value. Never invent values.\n")
	sb.WriteString("3. Respect the requested format for each field (e.g. integer, string, list).\n")
	sb.WriteString("4. Include every requested field name as a key, even when its value is empty.\n")
	sb.WriteString("5. Keep values concise: a number, a short phrase, or a comma-separated list, not a paragraph.\n")

	return sb.String()
}

// buildUserPrompt constructs the user-level prompt containing the
// requirements and the paper text.
func buildUserPrompt(req ExtractionRequest) string {
	var sb strings.Builder

	sb.WriteString("Extract the following fields from the paper text below.\n\n")

	sb.WriteString("Fields to extract:\n")
	for _, r := range req.Requirements {
		sb.WriteString(fmt.Sprintf("- %s", r.Name))
		if r.Format != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", r.Format))
		}
		if r.Required {
			sb.WriteString(" [required]")
		}
		if r.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(r.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if req.Title != "" {
		sb.WriteString(fmt.Sprintf("Paper title: %s\n\n", req.Title))
	}

	markdown := req.Markdown
	if len(markdown) > maxMarkdownChars {
		markdown = markdown[:maxMarkdownChars] + "\n[truncated]"
	}

	sb.WriteString("Paper text:\n")
	sb.WriteString("---\n")
	sb.WriteString(markdown)
	sb.WriteString("\n---")

	return sb.String()
}

// parseExtraction parses the model's JSON payload into an ExtractionResult.
// Requirements missing from the response are filled with empty values so
// the result always covers the full requirement list.
func parseExtraction(content string, requirements []domain.ExtractionRequirement) (*ExtractionResult, error) {
	var parsed llmResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}

	if parsed.Fields == nil {
		return nil, fmt.Errorf("LLM response contains no fields object")
	}

	for _, r := range requirements {
		if _, ok := parsed.Fields[r.Name]; !ok {
			parsed.Fields[r.Name] = ""
		}
	}

	return &ExtractionResult{
		Fields:    parsed.Fields,
		Reasoning: parsed.Reasoning,
	}, nil
}
