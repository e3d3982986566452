package main

import (
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/braidlog/braid/internal/merge"
	"github.com/braidlog/braid/internal/ruleset"

	"github.com/spf13/cobra"
)

func newMergeCommand(configFlag *string) *cobra.Command {
	var (
		dir        string
		out        string
		parserPath string
		parserOnly bool
		batchSize  int
		reverse    bool
		warmup     bool
		raw        bool
		include    []string
		exclude    []string
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a directory of device logs into a chunked session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if !cmd.Flags().Changed("out") {
				out = cfg.MergedDir
			}
			if !cmd.Flags().Changed("batch-size") {
				batchSize = cfg.BatchSize
			}
			if reverse && out != "" {
				return errors.New("--reverse cannot write a session: chunks are stored newest-first (pass --out= to merge without one)")
			}

			var rs *ruleset.Ruleset
			if parserPath != "" {
				rs, err = ruleset.Load(parserPath)
				if err != nil {
					log.Printf("Warning: parser config %s unusable, falling back to heuristics: %v", parserPath, err)
					rs = nil
					if parserOnly {
						log.Printf("Warning: ignoring --parser-only without a working parser config")
						parserOnly = false
					}
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			stats, err := merge.Run(ctx, merge.SessionOptions{
				Options: merge.Options{
					Dir:                dir,
					Ruleset:            rs,
					ParserOnly:         parserOnly,
					BatchSize:          batchSize,
					Reverse:            reverse,
					Warmup:             warmup,
					WarmupPerFileLimit: cfg.WarmupPerFileLimit,
					WarmupTarget:       cfg.WarmupTarget,
					Include:            include,
					Exclude:            exclude,
				},
				MergedDir:     out,
				ChunkMaxLines: cfg.ChunkMaxLines,
				Raw:           raw,
			})
			if err != nil {
				return err
			}

			elapsed := time.Since(started).Round(time.Millisecond)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Merged %d lines from %d files in %s\n", stats.Lines, stats.Files, elapsed)
			if warmup {
				fmt.Fprintf(w, "  warmup pass: %d lines\n", stats.WarmupLines)
			}
			if stats.Skipped > 0 {
				fmt.Fprintf(w, "  skipped %d unreadable files\n", stats.Skipped)
			}
			if stats.Filtered > 0 {
				fmt.Fprintf(w, "  dropped %d files outside the parser config\n", stats.Filtered)
			}
			if out != "" {
				fmt.Fprintf(w, "  session: %s\n", out)
			}
			if stats.Cancelled {
				fmt.Fprintln(w, "  interrupted: output is a consistent prefix")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "input directory of device log files")
	cmd.Flags().StringVar(&out, "out", "", "merged session directory (default from config)")
	cmd.Flags().StringVar(&parserPath, "parser", "", "JSON parser rules file")
	cmd.Flags().BoolVar(&parserOnly, "parser-only", false, "drop files the parser rules do not apply to")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "entries per delivered batch (default from config)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "emit oldest lines first (session-less runs only)")
	cmd.Flags().BoolVar(&warmup, "warmup", false, "run the approximate warmup pass before the full merge")
	cmd.Flags().BoolVar(&raw, "raw", false, "also keep a per-session raw JSONL journal")
	cmd.Flags().StringSliceVar(&include, "include", nil, "glob of base names to merge (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "glob of base names to skip (repeatable)")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}
