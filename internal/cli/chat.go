package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"productrag/internal/tui"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive product advisory chat",
	Long: `Open a full-screen chat. Every question goes through the same
three-tier answer path as 'ask'.

Keys: Enter sends, PgUp/PgDn scrolls, Esc or Ctrl-C quits.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of products to retrieve (default from config)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	rt, err := buildRuntime(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer rt.Close()

	// Fail before taking over the terminal.
	if err := rt.engine.Init(cmd.Context()); err != nil {
		return err
	}

	title := fmt.Sprintf("Tư vấn sản phẩm · %s · %s", cfg.VectorStore.Collection, cfg.LLM.Model)
	model := tui.New(rt.engine, title, chatTopK, cfg.LLM.Timeout+cfg.LLM.PingTimeout+cfg.LLM.RestartWait)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}
