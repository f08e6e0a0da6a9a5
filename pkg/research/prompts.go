package research

import "github.com/tmc/langchaingo/prompts"

var searchQueryPrompt = prompts.NewPromptTemplate(
	"Given the following research project description, generate a natural-language search phrase "+
		"(one sentence, no special characters):\n\nDescription: {{.description}}\n\nSearch topic:",
	[]string{"description"},
)

var summaryPrompt = func() prompts.PromptTemplate {
	p := prompts.NewPromptTemplate(
		"Summarize the following research content related to '{{.query}}' in a structured response: "+
			"\n\n{{.content}}\n\nRespond in this format and use markdown if possible to make it more readable:\n"+
			"{{.format_instructions}}",
		[]string{"query", "content"},
	)
	p.PartialVariables = map[string]any{"format_instructions": FormatInstructions()}
	return p
}()

// agentInstruction is the fallback agent's system prompt.
var agentInstruction = "You are a helpful research assistant that will generate structured, accurate answers " +
	"using appropriate tools. Use search_in_papers first, then research to fetch new papers, and the " +
	"search and wikipedia tools when papers are not enough. Wrap the output in this format and provide " +
	"no other text or explanation:\n" + FormatInstructions()
