package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcalzada-xor/cyberiq/internal/app"
	"github.com/lcalzada-xor/cyberiq/internal/config"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

func main() {
	// -page-size and the other server settings come from config.Load.
	q := flag.String("q", "", "Question to answer, e.g. \"latest citrix kevs\"")
	page := flag.Int("page", 1, "Page number")
	narrative := flag.Bool("narrative", false, "Generate the narrative with the LLM when a key is configured")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *q == "" {
		fmt.Fprintln(os.Stderr, "usage: cyberiq-cli -q \"<query>\" [-page N] [-page-size N] [-narrative]")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg.LLM.Narrative = *narrative
	cfg.Warmup.Schedule = ""

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	answer, err := application.QueryService.Answer(ctx, *q, domain.PageRequest{Page: *page, PageSize: cfg.Query.PageSize})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(answer); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
}
