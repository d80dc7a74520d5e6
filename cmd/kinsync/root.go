package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

var version = "dev"

// app carries what the root command sets up for its subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "kinsync",
		Short:             "Query, aggregate and sync collections of JSON documents",
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Shutdown() },
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newQueryCmd(a),
		newAggregateCmd(a),
		newUploadCmd(a),
		newPullCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		cfg.Logging.Console.Level = a.logLevel
		cfg.Logging.File.Level = a.logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.cfg = cfg
	a.logger = slog.Default()
	a.logger.Debug("configuration loaded", "path", a.configPath, "command", cmd.Name())
	return nil
}

// signalContext is cancelled on SIGINT and SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// readDocuments decodes a JSON array of documents from path, or from stdin
// when path is "-".
func readDocuments(path string, stdin io.Reader) ([]model.Document, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var docs []model.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return docs, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFilter decodes a JSON filter; an empty string is no filter.
func parseFilter(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var filter map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, model.Errorf(model.ErrQuery, "invalid filter: %v", err)
	}
	return filter, nil
}

// applySort adds "a,-b" style sort fields to q.
func applySort(q *query.Query, list string) {
	for _, field := range splitList(list) {
		if name, ok := strings.CutPrefix(field, "-"); ok {
			q.Descending(name)
		} else {
			q.Ascending(strings.TrimPrefix(field, "+"))
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
