package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	lctools "github.com/tmc/langchaingo/tools"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"github.com/mikeboe/research-assistant/pkg/ingest"
)

const agentAppName = "research-assistant"

// ToolArgs is the single free-text argument every agent tool takes.
type ToolArgs struct {
	Input string `json:"input" description:"The text input for the tool"`
}

type ToolResult struct {
	Output string `json:"output"`
}

// NamedTool is a langchaingo tool exposed to the agent under a fixed name.
type NamedTool struct {
	Name string
	Tool lctools.Tool
}

// Toolset is everything the fallback agent can call.
type Toolset struct {
	external []NamedTool
	ingester Ingester
	papers   *PaperIndex
	logger   *slog.Logger
}

func NewToolset(ingester Ingester, papers *PaperIndex, external ...NamedTool) *Toolset {
	return &Toolset{
		external: external,
		ingester: ingester,
		papers:   papers,
		logger:   slog.Default(),
	}
}

func (t *Toolset) Name() string {
	return "research_tools"
}

func (t *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	var out []tool.Tool

	for _, nt := range t.external {
		ft, err := functiontool.New[ToolArgs, ToolResult](
			functiontool.Config{Name: nt.Name, Description: nt.Tool.Description()},
			t.callExternal(nt),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", nt.Name, err)
		}
		out = append(out, ft)
	}

	if t.ingester != nil {
		ft, err := functiontool.New[ToolArgs, ToolResult](
			functiontool.Config{
				Name:        "research",
				Description: "Search arXiv for papers on a topic, then download and index them so search_in_papers can read them.",
			},
			func(ctx tool.Context, args ToolArgs) (ToolResult, error) {
				return t.Research(ctx, args)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create research tool: %w", err)
		}
		out = append(out, ft)
	}

	if t.papers != nil {
		ft, err := functiontool.New[ToolArgs, ToolResult](
			functiontool.Config{
				Name:        "search_in_papers",
				Description: "Semantic search over the content of the papers that have already been indexed.",
			},
			func(ctx tool.Context, args ToolArgs) (ToolResult, error) {
				return t.SearchInPapers(ctx, args)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create search_in_papers tool: %w", err)
		}
		out = append(out, ft)

		ft, err = functiontool.New[ToolArgs, ToolResult](
			functiontool.Config{
				Name:        "read_paper",
				Description: "Read the full indexed text of one paper, given its source URL or file name as returned by search_in_papers.",
			},
			func(ctx tool.Context, args ToolArgs) (ToolResult, error) {
				return t.ReadPaper(ctx, args)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create read_paper tool: %w", err)
		}
		out = append(out, ft)
	}

	return out, nil
}

func (t *Toolset) callExternal(nt NamedTool) func(tool.Context, ToolArgs) (ToolResult, error) {
	return func(ctx tool.Context, args ToolArgs) (ToolResult, error) {
		t.logger.Info("Agent tool call", "tool", nt.Name, "input", args.Input)
		out, err := nt.Tool.Call(ctx, args.Input)
		if err != nil {
			return ToolResult{}, fmt.Errorf("%s failed: %w", nt.Name, err)
		}
		return ToolResult{Output: out}, nil
	}
}

// Research ingests the papers for args.Input and reports what was indexed.
func (t *Toolset) Research(ctx context.Context, args ToolArgs) (ToolResult, error) {
	t.logger.Info("Agent tool call", "tool", "research", "input", args.Input)
	res, err := t.ingester.IngestTopic(ctx, args.Input)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Output: describeIngest(res)}, nil
}

// SearchInPapers searches the indexed papers.
func (t *Toolset) SearchInPapers(ctx context.Context, args ToolArgs) (ToolResult, error) {
	t.logger.Info("Agent tool call", "tool", "search_in_papers", "input", args.Input)
	out, err := t.papers.SearchFormatted(ctx, args.Input, "")
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Output: out}, nil
}

// ReadPaper returns the whole text of the paper named by args.Input.
func (t *Toolset) ReadPaper(ctx context.Context, args ToolArgs) (ToolResult, error) {
	t.logger.Info("Agent tool call", "tool", "read_paper", "input", args.Input)
	out, err := t.papers.ContentBySource(ctx, args.Input)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Output: out}, nil
}

func describeIngest(res *ingest.Result) string {
	if !res.Found() {
		return "No papers found on arXiv for: " + res.Query
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("arXiv search for %q returned %d paper(s):\n", res.Query, len(res.Papers)))
	for _, p := range res.Papers {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s", p.Title, p.URL, p.Status))
		if p.Chunks > 0 {
			sb.WriteString(fmt.Sprintf(", %d chunks", p.Chunks))
		}
		if p.Error != "" {
			sb.WriteString(", " + p.Error)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Use search_in_papers to read their content.")
	return sb.String()
}

// ADKAgent runs a single-turn llmagent in a throwaway in-memory session.
type ADKAgent struct {
	agent  agent.Agent
	logger *slog.Logger
}

func NewADKAgent(llm model.LLM, toolset *Toolset) (*ADKAgent, error) {
	a, err := llmagent.New(llmagent.Config{
		Name:        "research_assistant",
		Model:       llm,
		Description: "A research assistant that answers questions from papers, the web and Wikipedia.",
		Instruction: agentInstruction,
		Toolsets:    []tool.Toolset{toolset},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return &ADKAgent{agent: a, logger: slog.Default()}, nil
}

// Run asks the agent query and returns the text of its last response.
func (a *ADKAgent) Run(ctx context.Context, query string) (string, error) {
	sessions := session.InMemoryService()
	userID := "user"
	sessionID := uuid.NewString()

	if _, err := sessions.Create(ctx, &session.CreateRequest{
		AppName:   agentAppName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        agentAppName,
		Agent:          a.agent,
		SessionService: sessions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create runner: %w", err)
	}

	msg := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: query}},
	}

	var last string
	for event, err := range r.Run(ctx, userID, sessionID, msg, agent.RunConfig{}) {
		if err != nil {
			return "", fmt.Errorf("agent run failed: %w", err)
		}
		if event.LLMResponse.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range event.LLMResponse.Content.Parts {
			if part.FunctionCall != nil {
				a.logger.Info("Agent tool call", "tool", part.FunctionCall.Name)
			}
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			last = text
		}
	}

	if last == "" {
		return "", fmt.Errorf("agent returned no text")
	}
	return last, nil
}
