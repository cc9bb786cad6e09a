package moderation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BinLe1988/moderation-gateway/models"
)

type structuredBody struct {
	Input           *string         `json:"input"`
	Text            *string         `json:"text"`
	DetectionConfig json.RawMessage `json:"detection_config"`
}

type batchBody struct {
	Inputs []json.RawMessage `json:"inputs"`
}

// NormalizeStructured parses a POST /moderate body. The text may be given as
// "input" or "text"; "input" wins when both are present.
func NormalizeStructured(body []byte) (models.ModerationRequest, error) {
	var req structuredBody
	if err := json.Unmarshal(body, &req); err != nil {
		return models.ModerationRequest{}, ValidationError("body", "must be a JSON object with an input field")
	}

	var text string
	switch {
	case req.Input != nil:
		text = *req.Input
	case req.Text != nil:
		text = *req.Text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ModerationRequest{}, ValidationError("input", "is required and must not be empty")
	}

	cfg, err := parseDetectionConfig(req.DetectionConfig)
	if err != nil {
		return models.ModerationRequest{}, err
	}

	return models.ModerationRequest{Text: text, DetectionConfig: cfg}, nil
}

// NormalizePlain treats the whole body as the text to moderate.
func NormalizePlain(body []byte) (models.ModerationRequest, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return models.ModerationRequest{}, ValidationError("body", "must not be empty")
	}
	return models.ModerationRequest{Text: text}, nil
}

// NormalizeForm handles the "text" field of the index page form.
func NormalizeForm(text string) (models.ModerationRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ModerationRequest{}, ValidationError("text", "must not be empty")
	}
	return models.ModerationRequest{Text: text}, nil
}

// NormalizeBatch parses a POST /moderate/batch body into one request per
// input, in input order. Batch items never carry a detection config.
func NormalizeBatch(body []byte, maxSize int) ([]models.ModerationRequest, error) {
	var req batchBody
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, ValidationError("body", "must be a JSON object with an inputs array")
	}

	switch {
	case req.Inputs == nil:
		return nil, ValidationError("inputs", "is required")
	case len(req.Inputs) == 0:
		return nil, ValidationError("inputs", "must contain at least one item")
	case maxSize > 0 && len(req.Inputs) > maxSize:
		return nil, ValidationError("inputs", "must contain at most %d items, got %d", maxSize, len(req.Inputs))
	}

	reqs := make([]models.ModerationRequest, 0, len(req.Inputs))
	for i, raw := range req.Inputs {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, ValidationError(itemField(i), "must be a string")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ValidationError(itemField(i), "must not be empty")
		}
		reqs = append(reqs, models.ModerationRequest{Text: text})
	}
	return reqs, nil
}

// parseDetectionConfig only checks the shape: string keys, boolean leaves.
func parseDetectionConfig(raw json.RawMessage) (models.DetectionConfig, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var cfg models.DetectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, ValidationError("detection_config", "must map category names to objects of boolean rules")
	}
	for category, rules := range cfg {
		if rules == nil {
			return nil, ValidationError("detection_config."+category, "must be an object of boolean rules")
		}
	}
	if len(cfg) == 0 {
		return nil, nil
	}
	return cfg, nil
}

func itemField(i int) string {
	return "inputs[" + strconv.Itoa(i) + "]"
}
