package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"productrag/config"
	"productrag/internal/logger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and the prompt files",
	Long: `Write productrag.yaml with the default settings and the built-in system
prompt and query templates into the prompts directory, so all of them can
be edited. Existing files are left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root := GetRootDir()

	cfgPath := filepath.Join(root, "productrag.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.DefaultConfig().Save(cfgPath); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Wrote %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists at %s\n", cfgPath)
	}

	store := newPromptStore(GetConfig(), root, logger.Get())
	written, err := store.WriteDefaults()
	if err != nil {
		return fmt.Errorf("failed to write prompts: %w", err)
	}
	if len(written) == 0 {
		fmt.Printf("Prompt files already exist in %s\n", store.Dir())
		return nil
	}
	for _, path := range written {
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
