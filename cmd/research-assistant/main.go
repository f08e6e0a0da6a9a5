package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-assistant/pkg/config"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/research"
)

var (
	description    string
	collectionName string
	configFile     string
)

func main() {
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "research-assistant",
		Short: "A terminal-based research assistant",
		Long: `research-assistant turns a research description into an arXiv search, indexes the papers it finds
and answers questions about them, falling back to web and Wikipedia search.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&collectionName, "collection", "c", "", "The target vector DB collection name")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (default $CONFIG_FILE)")
	rootCmd.Flags().StringVarP(&description, "description", "d", "", "The research project description")

	rootCmd.AddCommand(newAskCmd(), newIngestCmd(), newPapersCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies the --config and --collection flags on top of Load.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if collectionName != "" {
		cfg.CollectionName = collectionName
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

type app struct {
	cfg        *config.Config
	db         *database.PostgresDB
	components *research.Components
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.CreatePapersTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	components, err := research.NewComponents(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: db, components: components}, nil
}

func (a *app) Close() {
	if err := a.components.Close(); err != nil {
		slog.Warn("Failed to close dedup table", "error", err)
	}
	a.db.Close()
}

func runInteractive(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	desc := strings.TrimSpace(description)
	if desc == "" {
		fmt.Fprint(out, "Enter your research project description: ")
		line, _ := reader.ReadString('\n')
		desc = strings.TrimSpace(line)
	}
	if desc == "" {
		return errors.New("description cannot be empty")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Starting research", "collection", a.cfg.CollectionName)
	topic, err := a.components.Assistant.UnderstandTopic(ctx, desc)
	if err != nil {
		return err
	}
	printTopic(out, topic)

	for {
		fmt.Fprint(out, "\nAsk a question about your research (or 'exit' to quit): ")
		line, err := reader.ReadString('\n')
		question := strings.TrimSpace(line)
		if isExit(question) || (err != nil && question == "") {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if question == "" {
			continue
		}

		resp, err := a.components.Assistant.AnswerQuery(ctx, question)
		if errors.Is(err, research.ErrNoResult) {
			fmt.Fprintln(out, "No results found for the given query.")
			continue
		}
		if err != nil {
			slog.Error("Error answering question", "error", err)
			continue
		}
		if err := printJSON(out, resp); err != nil {
			return err
		}
	}
}

func isExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", "q:", "0":
		return true
	}
	return false
}

func printTopic(out io.Writer, topic *research.TopicResult) {
	fmt.Fprintf(out, "\nSearch query: %s\n", topic.SearchQuery)
	if !topic.Found {
		fmt.Fprintln(out, "No papers found on arXiv. Questions will be answered with web and Wikipedia search.")
		return
	}
	for _, p := range topic.Papers {
		line := fmt.Sprintf("  [%s] %s", p.Status, p.Title)
		if p.Chunks > 0 {
			line += fmt.Sprintf(" (%d chunks)", p.Chunks)
		}
		if p.Error != "" {
			line += ": " + p.Error
		}
		fmt.Fprintln(out, line)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
