package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"productrag/internal/logger"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show collection information",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()

	encoder, err := newEncoder(cfg, nil, logger.Get())
	if err != nil {
		return err
	}
	st, collection, err := openCollection(cfg, root, encoder.ModelName(), logger.Get())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := collection.CreateCollection(cmd.Context(), false); err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	info := collection.Info(cmd.Context())

	if infoJSON {
		output, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	version, err := st.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	collections, err := st.Collections()
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	fmt.Printf("Collection:   %s\n", info.Name)
	fmt.Printf("  Status:     %s\n", info.Status)
	fmt.Printf("  Count:      %d\n", info.Count)
	fmt.Printf("  Model:      %s\n", info.Model)
	fmt.Printf("  Dimension:  %d\n", info.Dimension)
	if info.Fingerprint != "" {
		fmt.Printf("  Fingerprint: %s\n", info.Fingerprint)
	}
	fmt.Printf("\nStore:        %s\n", cfg.IndexDBPath(root))
	fmt.Printf("  Schema:     v%d\n", version)
	fmt.Printf("  Collections: %v\n", collections)
	return nil
}
