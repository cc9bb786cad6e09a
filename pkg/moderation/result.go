package moderation

import (
	"encoding/json"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/pkg/errors"
)

// ParseResult extracts flagged state and categories from an upstream response
// body. The body must be a JSON object; its "result" field may be an object or
// a list whose first element is used. Raw keeps the body verbatim.
func ParseResult(body []byte) (models.ModerationResult, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.ModerationResult{}, errors.Wrap(err, "response body is not a JSON object")
	}
	if doc == nil {
		return models.ModerationResult{}, errors.New("response body is null")
	}

	result := models.ModerationResult{
		Categories:        make(map[string]bool),
		FlaggedCategories: []string{},
		Raw:               json.RawMessage(append([]byte(nil), body...)),
	}

	res := firstResult(doc["result"])
	if res == nil {
		return result, nil
	}

	if list, ok := res["flagged_categories"].([]interface{}); ok {
		for _, item := range list {
			if name, ok := item.(string); ok && name != "" {
				result.FlaggedCategories = append(result.FlaggedCategories, name)
				result.Categories[name] = true
			}
		}
	}

	for _, key := range []string{"categories", "category_details"} {
		if details, ok := res[key].(map[string]interface{}); ok {
			mergeCategories(result.Categories, "", details)
		}
	}

	if flagged, ok := res["flagged"].(bool); ok {
		result.Flagged = flagged
	} else {
		result.Flagged = len(result.FlaggedCategories) > 0
	}

	return result, nil
}

func firstResult(v interface{}) map[string]interface{} {
	switch res := v.(type) {
	case map[string]interface{}:
		return res
	case []interface{}:
		if len(res) > 0 {
			if first, ok := res[0].(map[string]interface{}); ok {
				return first
			}
		}
	}
	return nil
}

// mergeCategories copies boolean leaves, one nesting level deep, as
// "group/name". Flags already set to true are never cleared.
func mergeCategories(dst map[string]bool, prefix string, src map[string]interface{}) {
	for k, val := range src {
		name := k
		if prefix != "" {
			name = prefix + "/" + k
		}
		switch v := val.(type) {
		case bool:
			dst[name] = dst[name] || v
		case map[string]interface{}:
			if prefix == "" {
				mergeCategories(dst, name, v)
			}
		}
	}
}
