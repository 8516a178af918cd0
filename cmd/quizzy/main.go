package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quizzy-app/quizzy/internal/extract"
	"github.com/quizzy-app/quizzy/internal/generator"
	"github.com/quizzy-app/quizzy/internal/handler"
	"github.com/quizzy-app/quizzy/internal/lifecycle"
	"github.com/quizzy-app/quizzy/internal/llm"
	"github.com/quizzy-app/quizzy/internal/model"
	"github.com/quizzy-app/quizzy/internal/service"
	"github.com/quizzy-app/quizzy/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizzy",
		Short: "LLM-powered test generation and delivery platform",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizzy --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizzy.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("jwt-secret", "", "Secret for signing API tokens (required)")
	f.String("timezone", "Asia/Kolkata", "IANA timezone for test windows")
	f.Duration("sweep-interval", lifecycle.DefaultInterval, "How often to reconcile test statuses")
	f.Int("chunk-size", 0, "Maximum characters per document chunk (0 = default)")
	f.Float64("min-relevance", 0, "Minimum relevance score for generated questions (0 = default)")
	f.Duration("llm-timeout", 0, "Budget per LLM call (0 = default)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a test from a document without starting the server",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("db", "quizzy.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("timezone", "Asia/Kolkata", "IANA timezone for test windows")
	f.String("document", "", "Path to the source document (required)")
	f.String("name", "", "Test name (required)")
	f.Int64("owner", 0, "Owning teacher's user ID (required)")
	f.IntP("num-questions", "n", 10, "Number of questions to generate")
	f.StringP("difficulty", "d", "medium", "Question difficulty (easy, medium, hard)")
	f.Int("chunk-size", 0, "Maximum characters per document chunk (0 = default)")
	f.Float64("min-relevance", 0, "Minimum relevance score for generated questions (0 = default)")
	f.Duration("llm-timeout", 0, "Budget per LLM call (0 = default)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a teacher's test results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizzy.db", "SQLite database path")
	f.Int64("teacher", 0, "Teacher's user ID (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("teacher")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZZY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizzy")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizzy")
	v.AddConfigPath("/etc/quizzy")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func clockFor(name string) (func() time.Time, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return func() time.Time { return time.Now().In(loc) }, nil
}

func newSampler(cmd *cobra.Command, v *viper.Viper) (*generator.Sampler, error) {
	client := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := client.Ping(cmd.Context()); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	return generator.New(client, generator.Config{
		MaxChunkChars: v.GetInt("chunk-size"),
		MinRelevance:  v.GetFloat64("min-relevance"),
		CallTimeout:   v.GetDuration("llm-timeout"),
	}), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret flag or QUIZZY_JWT_SECRET env var")
	}

	now, err := clockFor(v.GetString("timezone"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sampler, err := newSampler(cmd, v)
	if err != nil {
		return err
	}

	svc := service.New(db, sampler, extract.PlainText{}, service.Config{Now: now})
	h := handler.New(svc, db, []byte(secret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The sweeper and the service share one clock, so the periodic sweep and
	// on-read reconciliation can never disagree about the current time.
	sweeper := lifecycle.NewSweeper(db, v.GetDuration("sweep-interval"), now)
	go sweeper.Run(ctx)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: h.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"timezone", v.GetString("timezone"),
		"sweep_interval", v.GetDuration("sweep-interval"),
	)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	now, err := clockFor(v.GetString("timezone"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ownerID := v.GetInt64("owner")
	owner, err := db.GetUserByID(ownerID)
	if err != nil {
		return fmt.Errorf("look up owner: %w", err)
	}
	if owner == nil {
		return fmt.Errorf("no user with ID %d", ownerID)
	}

	sampler, err := newSampler(cmd, v)
	if err != nil {
		return err
	}
	svc := service.New(db, sampler, extract.PlainText{}, service.Config{Now: now})

	docPath := v.GetString("document")
	out, err := svc.Generate(cmd.Context(), owner, service.GenerateInput{
		DocumentPath: docPath,
		SourceName:   docPath,
		TestName:     v.GetString("name"),
		NumQuestions: v.GetInt("num-questions"),
		Difficulty:   model.Difficulty(v.GetString("difficulty")),
	})
	if err != nil {
		return fmt.Errorf("generate test: %w", err)
	}
	if out.Warning != "" {
		slog.Warn(out.Warning)
	}
	slog.Info("test generated",
		"name", out.Test.Name,
		"questions", len(out.Test.Questions),
		"status", out.Test.Status,
	)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	teacherID := v.GetInt64("teacher")
	tests, err := db.ExportTeacherResults(teacherID)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	export := model.ResultsExport{
		TeacherID: teacherID,
		Date:      time.Now().Format("2006-01-02"),
		Tests:     tests,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
