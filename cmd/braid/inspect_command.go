package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/braidlog/braid/internal/chunkstore"

	"github.com/spf13/cobra"
)

func newInspectCommand(configFlag *string) *cobra.Command {
	var mergedDir string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest and chunk layout of a merged session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cmd.Flags().Changed("merged") {
				mergedDir = cfg.MergedDir
			}

			man, err := chunkstore.LoadOrCreate(mergedDir)
			if err != nil {
				return fmt.Errorf("load manifest: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session:      %s\n", mergedDir)
			fmt.Fprintf(w, "Created:      %s\n", man.CreatedAt)
			fmt.Fprintf(w, "Merged lines: %d\n", man.MergedLines)
			fmt.Fprintf(w, "Chunks:       %d\n", man.ChunkCount)

			if len(man.Chunks) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(man.Chunks))
			for i, c := range man.Chunks {
				status := "ok"
				if _, err := os.Stat(filepath.Join(mergedDir, c.File)); err != nil {
					status = "missing"
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					c.File,
					strconv.FormatInt(c.Lines, 10),
					strconv.FormatInt(c.Start+1, 10),
					strconv.FormatInt(c.Start+c.Lines, 10),
					status,
				})
			}

			fmt.Fprintln(w)
			fmt.Fprintln(w, renderTable(
				[]string{"#", "File", "Lines", "First", "Last", "Status"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&mergedDir, "merged", "", "merged session directory (default from config)")

	return cmd
}
