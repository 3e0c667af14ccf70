// Package main runs the production pipeline for one or more topics from the
// command line. With no topics it picks one from trend detection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/chicogong/ytagents/pkg/config"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/pipeline"
	"github.com/chicogong/ytagents/pkg/tracing"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	mode       = flag.String("mode", "", "Failure policy: tolerant or strict (overrides config)")
	publish    = flag.Bool("publish", false, "Continue into upload instead of pausing before it")
	jsonOut    = flag.Bool("json", false, "Print reports as JSON")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Pipeline.Mode = *mode
	}
	if *publish {
		cfg.Pipeline.Publish = true
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, log, cfg.Tracing.Enabled, cfg.Tracing.ServiceName)
	defer shutdownTracing(context.Background())

	rt, err := pipeline.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", "error", err)
	}
	defer rt.Close()

	topics := flag.Args()
	if len(topics) == 0 {
		topics = []string{""}
	}

	reports, runErr := rt.Orchestrator.RunMany(ctx, topics, cfg.Pipeline.Concurrency)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			log.Error("encode reports", "error", err)
		}
	} else {
		printReports(reports)
	}

	if runErr != nil {
		log.Error("pipeline finished with errors", "error", runErr)
		os.Exit(1)
	}
}

func printReports(reports []*pipeline.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "WORKFLOW\tTOPIC\tPAUSED AT\tVIDEO\tSTAGES")
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		video := "-"
		if rep.Video != nil {
			video = rep.Video.ID
		}
		paused := string(rep.PausedAt)
		if paused == "" {
			paused = "-"
		}

		var stages []string
		for _, res := range rep.Results {
			stages = append(stages, fmt.Sprintf("%s=%s", res.Stage, res.Outcome))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rep.WorkflowID, rep.Topic, paused, video, strings.Join(stages, " "))
		if rep.Err != nil {
			fmt.Fprintf(w, "\t\terror: %v\t\t\n", rep.Err)
		}
	}
}
