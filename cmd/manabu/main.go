// Package main is the manabu CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/manabu/internal/cli"
	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/keyword"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/server"
	"github.com/hyperjump/manabu/internal/watcher"
	"github.com/hyperjump/manabu/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/manabu/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	serverURL  string
	local      bool
	format     string
	debug      bool
}

func main() {
	// API keys may live in a .env file next to the binary's working directory.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "manabu",
		Short:         "Exam preparation assistant over your own study material",
		Long:          "manabu ingests study material per exam category, answers questions grounded in it and generates practice questions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default: ./config.yaml, then "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", defaultServerURL, "server URL for query commands")
	root.PersistentFlags().BoolVar(&opts.local, "local", false, "run query commands in-process instead of against a server")
	root.PersistentFlags().StringVar(&opts.format, "format", "text", "output format: text or json")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(opts),
		newIngestCmd(opts),
		newAskCmd(opts),
		newQuestionsCmd(opts),
		newStatsCmd(opts),
		newPassagesCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath picks the explicit path, else ./config.yaml when present, else the
// system default.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cwd, err := os.Getwd(); err == nil {
		fallback := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(fallback); err == nil {
			return fallback
		}
	}
	return defaultConfigPath
}

// loadConfig loads the resolved config. A missing file at the default location yields the
// built-in defaults; a missing explicit file is an error.
func loadConfig(explicit string) (*config.Config, string, error) {
	path := resolveConfigPath(explicit)
	cfg, err := config.Load(path)
	if err != nil {
		if explicit == "" && errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger for a command.
func (o *globalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, path, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(cfg.Debug || o.debug, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Debug("Config loaded", zap.String("config_path", path))
	}
	return cfg, logger, nil
}

func (o *globalOptions) outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(o.format)
}

// withLocal runs fn against in-process components.
func (o *globalOptions) withLocal(ctx context.Context, withCompletion bool, fn func(*Components) error) error {
	cfg, logger, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	comps, err := initializeComponents(ctx, cfg, logger, withCompletion)
	if err != nil {
		return err
	}
	defer comps.Close()
	return fn(comps)
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.serverURL, 5*time.Minute)
}

func newServerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the inbox watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(parent context.Context, opts *globalOptions) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer comps.Close()

	var w *watcher.Watcher
	if len(cfg.Watch.Sources) > 0 {
		sources := make([]watcher.Source, 0, len(cfg.Watch.Sources))
		for _, src := range cfg.Watch.Sources {
			category, err := models.ParseCategory(src.Category, comps.Registry.Categories())
			if err != nil {
				return err
			}
			sources = append(sources, watcher.Source{Path: src.Path, Category: category, Subject: src.Subject})
		}
		w = watcher.NewWatcher(comps.Indexer, sources, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
			watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		go w.SyncExistingFiles(ctx)
	}

	srv := server.NewServer(comps.Service, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	if w != nil {
		w.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var category, subject string
	cmd := &cobra.Command{
		Use:   "ingest <file|dir>",
		Short: "Extract, chunk and embed a file or directory into an exam category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return opts.withLocal(cmd.Context(), false, func(c *Components) error {
				cat := models.Category(category)
				out := cmd.OutOrStdout()
				if info.IsDir() {
					n, err := c.Indexer.IngestDirectory(cmd.Context(), path, cat, subject, nil)
					fmt.Fprintf(out, "Ingested %d file(s) from %s\n", n, path)
					return err
				}
				res, skipped, err := c.Indexer.IngestFile(cmd.Context(), path, cat, subject, nil)
				if err != nil {
					return err
				}
				if skipped {
					fmt.Fprintf(out, "Skipped %s: already ingested\n", path)
					return nil
				}
				fmt.Fprintf(out, "Ingested %s: %d chunk(s)\n", path, res.ChunksCreated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "exam category (e.g. NEET, JEE)")
	cmd.Flags().StringVar(&subject, "subject", "", "subject of the material")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var category, subject string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a study question from the ingested material",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			req := models.AnswerRequest{Query: joinArgs(args), Category: models.Category(category), Subject: subject}
			var res *models.AnswerResult
			if opts.local {
				err = opts.withLocal(cmd.Context(), true, func(c *Components) error {
					res, err = c.Service.Answer(cmd.Context(), req)
					return err
				})
			} else {
				res = &models.AnswerResult{}
				err = opts.client().post(cmd.Context(), "/api/v1/query", req, res)
			}
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "exam category (e.g. NEET, JEE)")
	cmd.Flags().StringVar(&subject, "subject", "", "restrict sources to one subject")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newQuestionsCmd(opts *globalOptions) *cobra.Command {
	var req models.QuestionRequest
	var category, difficulty, qtype string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate practice questions on a topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			req.Category = models.Category(category)
			req.Difficulty = models.Difficulty(difficulty)
			req.QuestionType = models.QuestionType(qtype)
			var questions []models.Question
			if opts.local {
				err = opts.withLocal(cmd.Context(), true, func(c *Components) error {
					questions, err = c.Service.GenerateQuestions(cmd.Context(), req)
					return err
				})
			} else {
				var resp struct {
					Questions []models.Question `json:"questions"`
				}
				err = opts.client().post(cmd.Context(), "/api/v1/questions", req, &resp)
				questions = resp.Questions
			}
			if err != nil {
				return err
			}
			return cli.WriteQuestions(cmd.OutOrStdout(), questions, format)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "exam category (e.g. NEET, JEE)")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "topic")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(models.DifficultyMedium), "easy, medium or hard")
	cmd.Flags().StringVar(&qtype, "type", string(models.QuestionMCQ), "MCQ, numerical or theory")
	cmd.Flags().IntVar(&req.Count, "count", models.DefaultQuestionCount, "number of questions")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ingestion and query statistics for a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			var stats *models.Stats
			if opts.local {
				err = opts.withLocal(cmd.Context(), false, func(c *Components) error {
					stats, err = c.Service.Stats(cmd.Context(), models.Category(category))
					return err
				})
			} else {
				stats = &models.Stats{}
				err = opts.client().get(cmd.Context(), "/api/v1/stats/"+url.PathEscape(category), nil, stats)
			}
			if err != nil {
				return err
			}
			return cli.WriteStats(cmd.OutOrStdout(), stats, format)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "exam category (e.g. NEET, JEE)")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newPassagesCmd(opts *globalOptions) *cobra.Command {
	var category, subject string
	var limit int
	var fuzzy bool
	cmd := &cobra.Command{
		Use:   "passages <query>",
		Short: "Keyword search over ingested passages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			query := joinArgs(args)
			var hits []models.PassageHit
			if opts.local {
				err = opts.withLocal(cmd.Context(), false, func(c *Components) error {
					hits, err = c.Service.SearchPassages(cmd.Context(), models.Category(category), query, limit,
						&keyword.SearchOptions{Subject: subject, FuzzyEnabled: fuzzy})
					return err
				})
			} else {
				q := url.Values{}
				q.Set("exam_type", category)
				q.Set("q", query)
				q.Set("limit", strconv.Itoa(limit))
				if subject != "" {
					q.Set("subject", subject)
				}
				if fuzzy {
					q.Set("fuzzy", "true")
				}
				var resp struct {
					Passages []models.PassageHit `json:"passages"`
				}
				err = opts.client().get(cmd.Context(), "/api/v1/passages", q, &resp)
				hits = resp.Passages
			}
			if err != nil {
				return err
			}
			return cli.WritePassages(cmd.OutOrStdout(), hits, format)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "exam category (e.g. NEET, JEE)")
	cmd.Flags().StringVar(&subject, "subject", "", "restrict hits to one subject")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of passages")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "tolerate typos in the query")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newInitCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "manabu version %s\n", version)
		},
	}
}

// joinArgs joins positional arguments into one query, so quoting is optional.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
