package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/wombat2006/wallbounce/internal/app"
	"github.com/wombat2006/wallbounce/internal/config"
	"github.com/wombat2006/wallbounce/internal/service/collab"
)

func main() {
	var (
		query     = flag.String("query", "", "query text to collaborate on")
		models    = flag.String("models", "", "comma-separated candidate models, in fallback order")
		taskType  = flag.String("task", "", "task type hint (e.g. analysis, coding)")
		sessionID = flag.String("session", "", "session id to continue; empty starts a new session")
		userID    = flag.String("user", "", "user id owning the session")
		verbosity = flag.String("verbosity", "", "verbosity option: low, medium or high")
		effort    = flag.String("effort", "", "effort option: minimal, low, medium or high")
		reasoning = flag.String("reasoning", "", "reasoning hint passed to the backends")
		minB      = flag.Int("min-bounces", 0, "minimum wall bounces (0 = engine default)")
		maxB      = flag.Int("max-bounces", 0, "maximum wall bounces (0 = engine default)")
		last      = flag.Bool("last", false, "print the last cached result for -session and exit")
	)
	flag.Parse()

	if os.Getenv("WALLBOUNCE_TRACE_STDOUT") == "true" {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer shutdown(context.Background())
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go application.Collab.WatchSessionEvents(ctx)

	if *last {
		if *sessionID == "" {
			log.Fatalf("-last requires -session")
		}
		resp, err := application.Collab.LastResult(ctx, *sessionID)
		if err != nil {
			log.Fatalf("Failed to load last result: %v", err)
		}
		printResponse(resp)
		return
	}

	req := collab.CollabRequest{
		Query:    *query,
		TaskType: *taskType,
		Models:   splitModels(*models),
		Options: collab.RequestOptions{
			Verbosity:      *verbosity,
			Effort:         *effort,
			Reasoning:      *reasoning,
			MinWallBounces: *minB,
			MaxWallBounces: *maxB,
		},
		SessionID: *sessionID,
		UserID:    *userID,
	}
	if len(req.Models) == 0 && cfg.Models != nil {
		req.Models = []string{cfg.Models.GetDefaultModel()}
	}

	resp, err := application.Collab.Execute(ctx, req)
	if resp != nil {
		printResponse(resp)
	}
	if err != nil {
		log.Fatalf("Collaboration failed: %v", err)
	}
}

// splitModels parses the comma-separated -models flag
func splitModels(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	return models
}

func printResponse(resp *collab.CollabResponse) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode response: %v", err)
	}
	fmt.Println(string(data))
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
