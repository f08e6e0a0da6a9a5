package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/dedup"
	"github.com/mikeboe/research-assistant/pkg/ingest"
	"github.com/mikeboe/research-assistant/pkg/research"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.components.Assistant.AnswerQuery(cmd.Context(), strings.Join(args, " "))
			if errors.Is(err, research.ErrNoResult) {
				fmt.Fprintln(cmd.OutOrStdout(), "No results found for the given query.")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <glob>...",
		Short: "Index local PDF files, e.g. ingest 'papers/**/*.pdf'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandPatterns(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no PDF files match %s", strings.Join(args, " "))
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// Per-file logs would break the progress bar.
			pipeline := a.components.Pipeline.WithLogger(slog.New(slog.DiscardHandler))

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)

			counts := map[string]int{}
			chunks := 0
			for _, f := range files {
				out, err := pipeline.IngestFile(cmd.Context(), f, "")
				if err != nil {
					counts[ingest.StatusFailed]++
					slog.Error("Failed to index file", "file", f, "error", err)
				} else {
					counts[out.Status]++
					chunks += out.Chunks
				}
				_ = bar.Add(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d file(s) into %s: %d chunks, %d skipped, %d failed\n",
				counts[ingest.StatusIngested], a.cfg.CollectionName, chunks,
				counts[ingest.StatusSkipped], counts[ingest.StatusFailed])
			return nil
		},
	}
}

// expandPatterns resolves doublestar globs into a sorted, de-duplicated
// list of PDF files.
func expandPatterns(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !strings.EqualFold(filepath.Ext(m), ".pdf") || seen[m] {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func newPapersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "papers",
		Short: "List the papers recorded in the dedup table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Only the postgres backend needs a database connection.
			var pool *pgxpool.Pool
			if cfg.DedupBackend == "postgres" {
				db, err := database.NewPostgresDB(cmd.Context(), cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer db.Close()
				if err := db.CreatePapersTable(cmd.Context()); err != nil {
					return err
				}
				pool = db.Pool
			}

			store, err := dedup.Open(cmd.Context(), cfg.DedupBackend, cfg.DedupPath, pool)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No papers ingested yet.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n    %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Title, r.Key)
			}
			return nil
		},
	}
}
