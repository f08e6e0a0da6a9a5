package research

import (
	"errors"

	"github.com/mikeboe/research-assistant/pkg/ingest"
)

// ErrNoResult is returned when a question produced no usable answer.
var ErrNoResult = errors.New("no results found for the given query")

// ResearchResponse is the structured answer returned for every question.
type ResearchResponse struct {
	Topic       string   `json:"topic"`
	Question    string   `json:"question"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
	ToolsUsed   []string `json:"tools_used"`
	WebsiteUsed []string `json:"website_used"`
}

// Empty reports whether the response carries no answer at all.
func (r *ResearchResponse) Empty() bool {
	return r == nil || (r.Topic == "" && r.Summary == "" && r.Description == "")
}

func (r *ResearchResponse) normalize() {
	if r.Sources == nil {
		r.Sources = []string{}
	}
	if r.ToolsUsed == nil {
		r.ToolsUsed = []string{}
	}
	if r.WebsiteUsed == nil {
		r.WebsiteUsed = []string{}
	}
}

// TopicResult is what understanding a research description produced.
type TopicResult struct {
	Description string                `json:"description"`
	SearchQuery string                `json:"search_query"`
	Papers      []ingest.PaperOutcome `json:"papers"`
	Chunks      int                   `json:"chunks"`
	Found       bool                  `json:"found"`
}
