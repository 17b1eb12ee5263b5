package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"productrag/internal/domain"
)

var (
	queryText     string
	queryTopK     int
	queryJSON     bool
	queryDegraded bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the product collection",
	Long: `Embed the question and list the nearest products without generation.

--degraded searches with the collection's internal text encoder instead of
the embedding model. Its results live in a different embedding space and are
only fit for smoke tests.

Examples:
  productrag query -q "vali kéo size 20 inch"
  productrag query -q "balo laptop" -k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryDegraded, "degraded", false, "search without the embedding model (not production grade)")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(queryText) == "" {
		return fmt.Errorf("query must not be empty")
	}

	cfg := GetConfig()
	if _, err := os.Stat(cfg.IndexDBPath(GetRootDir())); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'productrag index' first")
	}

	rt, err := buildRuntime(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer rt.Close()

	var result domain.SearchResult
	if queryDegraded {
		fmt.Fprintln(os.Stderr, warnStyle.Render("warning: degraded search, results are not production grade"))
		result, err = rt.engine.QueryDegraded(cmd.Context(), queryText, queryTopK)
	} else {
		result, err = rt.engine.QueryVectorOnly(cmd.Context(), queryText, queryTopK)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Empty() {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(result.Hits), queryText)
	for i, hit := range result.Hits {
		printHit(i+1, hit)
	}
	return nil
}

func printHit(rank int, hit domain.SearchHit) {
	name := hit.Name()
	if name == "" {
		name = hit.ID
	}
	fmt.Printf("%s %s\n", rankStyle.Render(fmt.Sprintf("[%d]", rank)), nameStyle.Render(name))
	fmt.Println(dimStyle.Render(fmt.Sprintf("    similarity %.3f  category %s  %s",
		hit.Similarity(), hit.Metadata["category"], hit.Metadata["url"])))

	// Truncate long text for display
	text := []rune(hit.Text)
	if len(text) > 300 {
		text = append(text[:300], []rune("...")...)
	}
	fmt.Printf("    %s\n\n", string(text))
}

var (
	rankStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	tierStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
