package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askText string
	askTopK int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question with product advice",
	Long: `Retrieve the nearest products and ask the language model for advice.

When generation fails the retrieved products are listed instead; when
nothing is retrieved a fixed apology is returned. Degraded answers are
tagged with their tier.

Examples:
  productrag ask -q "Tôi cần vali nhẹ để đi công tác 3 ngày"
  productrag ask -q "balo cho laptop 15.6 inch" --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of products to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(askText) == "" {
		return fmt.Errorf("question must not be empty")
	}

	rt, err := buildRuntime(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer rt.Close()

	answer, err := rt.engine.QueryWithLLM(cmd.Context(), askText, askTopK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	fmt.Println()
	if answer.Degraded {
		fmt.Println(warnStyle.Render(fmt.Sprintf("[%s, degraded: %s]", answer.Tier, answer.Reason)))
	} else {
		fmt.Println(tierStyle.Render(fmt.Sprintf("[%s]", answer.Tier)))
	}
	return nil
}
