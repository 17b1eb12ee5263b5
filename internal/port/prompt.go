package port

// PromptSource supplies the current system prompt and context template.
// Implementations fall back to built-in defaults and never fail.
type PromptSource interface {
	SystemPrompt() string
	ContextTemplate() string
}
