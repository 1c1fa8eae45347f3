package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"komerge/internal/bootstrap"
	"komerge/internal/platform/config"
	"komerge/internal/platform/logctx"
	"komerge/internal/ui/booktable"
	"komerge/internal/ui/theme"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, theme.Fail.Render("error:"), err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logHuman   bool
}

type cliState struct {
	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rt := &cliState{}

	root := &cobra.Command{
		Use:           "komerge",
		Short:         "Merge duplicate books in KOReader reading statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flags.logLevel
			}
			if cmd.Flags().Changed("log-human") {
				cfg.LogHuman = flags.logHuman
			}
			rt.cfg = cfg
			rt.logger = logctx.NewConfiguredLogger(os.Stderr, cfg.LogLevel, cfg.LogHuman)
			logctx.SetDefaultLogger(rt.logger)
			cmd.SetContext(logctx.WithLogger(cmd.Context(), rt.logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&flags.logHuman, "log-human", false, "human-readable console logs")

	root.AddCommand(newServeCmd(rt))
	root.AddCommand(newBooksCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newMergeCmd())
	return root
}

func newServeCmd(rt *cliState) *cobra.Command {
	var addr, dataDir, basePath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the merge API server",
		Example: `  # Serve on the default :8000 with data under ./data
  komerge serve

  # Serve behind a reverse proxy at /komerge
  komerge serve --addr :9000 --base-path /komerge`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("base-path") {
				cfg.BasePath = config.NormalizeBasePath(basePath)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			app, err := bootstrap.New(cfg, rt.logger)
			if err != nil {
				return err
			}
			return bootstrap.Serve(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding session files (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "URL prefix the API is mounted under (overrides config)")
	return cmd
}

func newBooksCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the books recorded in a statistics database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := bootstrap.NewStatsCLI().ListBooks(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), booktable.Render(books))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "statistics.sqlite3 to read")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a file is a KOReader statistics database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bootstrap.NewStatsCLI().Validate(cmd.Context(), dbPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", theme.OK.Render("valid"), dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "statistics.sqlite3 to check")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var dbPath, outPath string
	var groups []string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge duplicate books offline into a new database",
		Example: `  # Fold books 2 and 5 into 1, and 7 into 6
  komerge merge --db statistics.sqlite3 --out statistics_fixed.sqlite3 --group 1:2,5 --group 6:7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(groups) == 0 {
				return fmt.Errorf("at least one --group is required")
			}
			out, err := bootstrap.NewStatsCLI().Merge(cmd.Context(), dbPath, outPath, groups)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, g := range out.Groups {
				_, _ = fmt.Fprintf(w, "%s book %d <- %v: %d events, %s, %d pages\n",
					theme.Hot.Render("merged"), g.KeepID, g.MergedIDs, g.Events, booktable.FormatSeconds(g.TotalTime), g.TotalPages)
			}
			_, _ = fmt.Fprintf(w, "wrote %s\n", theme.Title.Render(outPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "statistics.sqlite3 to read")
	cmd.Flags().StringVar(&outPath, "out", "statistics_fixed.sqlite3", "where to write the merged database")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "merge group as keep:id,id (repeatable)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
