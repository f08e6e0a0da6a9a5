package research

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const responseSchema = `{
  "type": "object",
  "properties": {
    "topic": {"type": "string", "description": "The research topic"},
    "question": {"type": "string", "description": "The question that was asked"},
    "summary": {"type": "string", "description": "Answer to the question, markdown allowed"},
    "description": {"type": "string", "description": "Short description of the findings"},
    "sources": {"type": "array", "items": {"type": "string"}, "description": "Papers or documents used"},
    "tools_used": {"type": "array", "items": {"type": "string"}, "description": "Names of the tools used"},
    "website_used": {"type": "array", "items": {"type": "string"}, "description": "URLs of websites used"}
  },
  "required": ["topic", "question", "summary", "description", "sources", "tools_used", "website_used"]
}`

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// FormatInstructions tells a model how to shape a ResearchResponse.
func FormatInstructions() string {
	return "The output should be formatted as a JSON instance that conforms to the JSON schema below. " +
		"Return the JSON object directly without any formatting or additional text.\n\n" +
		"Here is the output schema:\n```\n" + responseSchema + "\n```"
}

// ParseResearchResponse extracts a ResearchResponse from model output. The
// JSON may be bare, fenced in a markdown code block or embedded in prose.
func ParseResearchResponse(text string) (*ResearchResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{text}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var resp ResearchResponse
		if err := json.Unmarshal([]byte(c), &resp); err != nil {
			lastErr = err
			continue
		}
		resp.normalize()
		return &resp, nil
	}
	return nil, fmt.Errorf("failed to parse research response: %w", lastErr)
}
