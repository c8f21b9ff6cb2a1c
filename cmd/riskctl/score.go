package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"identrisk/internal/fraud/engine"
	"identrisk/internal/fraud/history"
	"identrisk/internal/fraud/models"
	"identrisk/internal/fraud/service"
	"identrisk/internal/fraud/store"
	"identrisk/pkg/requestcontext"
)

type scoreOptions struct {
	file        string
	rulesPath   string
	historyPath string
	now         string
	workers     int
}

func scoreCmd() *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a JSON array of transactions",
		Long: `Reads transactions in the POST /fraud/score shape and prints one
decision per transaction. A history file (JSON array of user histories)
makes velocity, behavioral and account age factors meaningful.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "transactions file (required)")
	cmd.Flags().StringVar(&opts.rulesPath, "rules", "", "YAML rules file, defaults when empty")
	cmd.Flags().StringVar(&opts.historyPath, "history", "", "user history file")
	cmd.Flags().StringVar(&opts.now, "now", "", "evaluation time (RFC 3339), defaults to the current time")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", service.DefaultBatchWorkers, "concurrent scorers")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type scoreOutput struct {
	Results  []*models.FraudScore `json:"results"`
	Failures []failureOutput      `json:"failures"`
}

type failureOutput struct {
	Index         int    `json:"index"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error"`
}

func runScore(ctx context.Context, opts *scoreOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC()
	if opts.now != "" {
		parsed, err := time.Parse(time.RFC3339, opts.now)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		now = parsed.UTC()
	}
	ctx = requestcontext.WithTime(ctx, now)

	eng, err := loadEngine(opts.rulesPath)
	if err != nil {
		return err
	}

	var txns []*models.Transaction
	if err := readJSON(opts.file, &txns); err != nil {
		return err
	}

	hist := history.NewMemoryStore(history.DefaultMaxTransactions)
	if opts.historyPath != "" {
		if err := seedHistory(hist, opts.historyPath); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.NewInMemoryStore(), hist, eng,
		service.WithLogger(logger),
		service.WithBatchWorkers(opts.workers),
	)
	result, err := svc.ScoreBatch(ctx, txns)
	if err != nil {
		return err
	}

	output := scoreOutput{Results: result.Scores, Failures: make([]failureOutput, 0, len(result.Failures))}
	for _, f := range result.Failures {
		output.Failures = append(output.Failures, failureOutput{Index: f.Index, TransactionID: f.TransactionID, Error: f.Err.Error()})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func loadEngine(rulesPath string) (*engine.Engine, error) {
	if rulesPath == "" {
		return engine.Default(), nil
	}
	rules, err := engine.LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	return engine.New(rules)
}

func seedHistory(hist *history.MemoryStore, path string) error {
	var users []models.UserHistory
	if err := readJSON(path, &users); err != nil {
		return err
	}
	for _, u := range users {
		hist.Seed(u)
	}
	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
