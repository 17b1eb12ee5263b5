package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"productrag/internal/domain"
	"productrag/internal/port"
)

var (
	promptQuery string
	promptTopK  int
	promptSend  bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render the generation context for a question",
	Long: `Retrieve products for a question and print the exact system context the
language model would receive, without calling it.

With --send the context is passed to the model once, outside the fallback
path, and its raw reply or backend error is printed.

Examples:
  productrag prompt -q "vali nào bền nhất?"
  productrag prompt -q "balo đi học" --send`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of products to retrieve (default from config)")
	promptCmd.Flags().BoolVar(&promptSend, "send", false, "send the rendered context to the model")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(promptQuery) == "" {
		return fmt.Errorf("question must not be empty")
	}

	rt, err := buildRuntime(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.engine.QueryVectorOnly(cmd.Context(), promptQuery, promptTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if result.Empty() {
		return fmt.Errorf("no products retrieved for %q", promptQuery)
	}

	builder := rt.contextBuilder
	system := builder.Build(rt.prompts.ContextTemplate(), rt.prompts.SystemPrompt(), result.Hits, promptQuery)

	if !promptSend {
		fmt.Println(system)
		return nil
	}

	text, err := rt.generator.Generate(cmd.Context(), port.GenerateRequest{
		Prompt:        promptQuery,
		SystemContext: system,
	})
	if err != nil {
		fmt.Println(describeGenerationError(err))
		fmt.Println(warnStyle.Render(fmt.Sprintf("[generation failed: %v]", err)))
		return nil
	}
	fmt.Println(text)
	return nil
}

// describeGenerationError turns a backend error into a line for the user.
func describeGenerationError(err error) string {
	switch {
	case errors.Is(err, domain.ErrLLMTimeout):
		return "Phản hồi bị timeout. Model có thể đang tải, vui lòng thử lại."
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "Ollama server không khả dụng. Vui lòng khởi động Ollama."
	default:
		return "Lỗi khi tạo phản hồi: " + err.Error()
	}
}
