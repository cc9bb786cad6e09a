package models

import (
	"encoding/json"
	"time"
)

// DetectionConfig maps a category to its rules, e.g. {"security": {"adversarial": true}}.
// Keys are passed through to the upstream API untouched.
type DetectionConfig map[string]map[string]bool

// ModerationRequest is one normalized text to moderate.
type ModerationRequest struct {
	Text            string
	DetectionConfig DetectionConfig
}

// UpstreamCall is one outbound attempt. A new value is built for every attempt.
type UpstreamCall struct {
	Payload  []byte
	Deadline time.Time
	Attempt  int
}

// UpstreamPayload is the body sent to the moderation API.
type UpstreamPayload struct {
	Input           string          `json:"input"`
	DetectionConfig DetectionConfig `json:"detection_config,omitempty"`
}

// ErrorInfo describes why a moderation call failed.
type ErrorInfo struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	Field          string `json:"field,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Attempts       int    `json:"attempts,omitempty"`
}

// ModerationResult is the normalized outcome for one input.
type ModerationResult struct {
	Input             string          `json:"input"`
	Flagged           bool            `json:"flagged"`
	Categories        map[string]bool `json:"categories"`
	FlaggedCategories []string        `json:"flagged_categories"`
	Raw               json.RawMessage `json:"raw"`
	Error             *ErrorInfo      `json:"error,omitempty"`
}

// OK reports whether the result carries no error.
func (r ModerationResult) OK() bool {
	return r.Error == nil
}

// BatchResponse is the body of POST /moderate/batch.
type BatchResponse struct {
	Results   []ModerationResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// NewBatchResponse counts successes and failures of positionally ordered results.
func NewBatchResponse(results []ModerationResult) BatchResponse {
	resp := BatchResponse{Results: results}
	for _, r := range results {
		if r.OK() {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}

// ErrorResponse is the body of a failed single-item call.
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// StatusResponse is returned by the health endpoints.
type StatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
