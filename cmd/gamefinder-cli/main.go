package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gamefinder/internal/adapters/localstorage"
	"gamefinder/internal/adapters/twitch"
	"gamefinder/internal/config"
	"gamefinder/internal/service"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, environment variables might be set manually
		fmt.Fprintln(os.Stderr, "No .env file found")
	}

	configPath := flag.String("config", "", "Optional YAML config file")
	input := flag.String("input", "", "CSV file of usernames (overrides config)")
	players := flag.String("players", "", "Output CSV of users who played the game")
	links := flag.String("links", "", "Output CSV of qualifying clip and video URLs")
	gameID := flag.String("game-id", "", "Twitch game id that qualifies a clip")
	keywords := flag.String("keywords", "", "Comma separated title keywords that qualify a video")
	concurrency := flag.Int("concurrency", 0, "Maximum users checked at once")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, &cfg); err != nil {
			fail(err)
		}
	}
	config.ApplyEnv(&cfg)
	applyFlags(&cfg, *input, *players, *links, *gameID, *keywords, *concurrency)
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	exec := twitch.NewExecutor(cfg.APIBaseURL, cfg.ClientID, twitch.RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		BaseDelay:     cfg.BaseDelay,
		BackoffFactor: cfg.BackoffFactor,
		MaxJitter:     cfg.MaxJitter,
	}, logger,
		twitch.WithHTTPClient(httpClient),
		twitch.WithRequestsPerSecond(cfg.RequestsPerSecond),
	)

	orchestrator := service.NewOrchestrator(
		localstorage.NewCSVSource(cfg.InputPath, cfg.UsernameColumn),
		twitch.NewTokenSource(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, httpClient, logger),
		twitch.NewClient(exec, logger),
		localstorage.NewCSVPlayerSink(cfg.PlayersPath),
		localstorage.NewCSVLinkSink(cfg.LinksPath),
		service.Options{
			ConcurrencyLimit: cfg.ConcurrencyLimit,
			FlushBatchSize:   cfg.FlushBatchSize,
			Criteria:         service.NewCriteria(cfg.GameID, cfg.Keywords),
		},
		logger,
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, cancelling")
		cancel()
	}()

	result, err := orchestrator.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Process interrupted")
			os.Exit(130)
		}
		fail(err)
	}

	// Print summary
	fmt.Println("\n=== Run Summary ===")
	fmt.Printf("Run ID:       %s\n", result.RunID)
	fmt.Printf("Usernames:    %d (%d unique)\n", result.InputRows, result.Unique)
	fmt.Printf("Resolved:     %d\n", result.Resolved)
	fmt.Printf("Played:       %d\n", result.Qualifying)
	fmt.Printf("Clip URLs:    %d\n", result.ClipLinks)
	fmt.Printf("Video URLs:   %d\n", result.VideoLinks)
	for reason, n := range result.Failures {
		fmt.Printf("Failed (%s): %d\n", reason, n)
	}
	fmt.Printf("Completed At: %s\n", result.FinishedAt.Format(time.RFC3339))
}

func applyFlags(cfg *config.Config, input, players, links, gameID, keywords string, concurrency int) {
	if input != "" {
		cfg.InputPath = input
	}
	if players != "" {
		cfg.PlayersPath = players
	}
	if links != "" {
		cfg.LinksPath = links
	}
	if gameID != "" {
		cfg.GameID = gameID
	}
	if keywords != "" {
		cfg.Keywords = config.SplitList(keywords)
	}
	if concurrency > 0 {
		cfg.ConcurrencyLimit = concurrency
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
