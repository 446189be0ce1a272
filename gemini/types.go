/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gemini

import "strings"

// Roles of Content.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is a piece of content. Only text parts are supported.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is a message of a conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig tunes the model output.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty" mapstructure:"temperature" yaml:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty" mapstructure:"topP" yaml:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty" mapstructure:"topK" yaml:"topK,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty" mapstructure:"maxOutputTokens" yaml:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty" mapstructure:"responseMimeType" yaml:"responseMimeType,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty" mapstructure:"stopSequences" yaml:"stopSequences,omitempty"`
}

// GenerateRequest is the body of a generateContent call.
type GenerateRequest struct {
	// Model overrides the configured model for this request. It is not sent in the body.
	Model string `json:"-"`

	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// NewTextRequest creates a single-turn request with the user prompt.
func NewTextRequest(prompt string) *GenerateRequest {
	return &GenerateRequest{Contents: []Content{{Role: RoleUser, Parts: []Part{{Text: prompt}}}}}
}

// Candidate is a single generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata is the token accounting reported by the API.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse is the body of a successful generateContent call.
type GenerateResponse struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion,omitempty"`
}

// Text returns the text of the first candidate.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Usage is the cumulative token usage of a Client.
type Usage struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"promptTokens"`
	CandidatesTokens int64 `json:"candidatesTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}
