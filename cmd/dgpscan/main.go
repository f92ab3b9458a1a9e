package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/config"
	"github.com/dgplabs/dgpscan/internal/inference"
	"github.com/dgplabs/dgpscan/internal/logging"
	"github.com/dgplabs/dgpscan/internal/patient"
	"github.com/dgplabs/dgpscan/internal/report"
	"github.com/dgplabs/dgpscan/internal/server"
)

func main() {
	configPath := flag.String("config", "dgpscan.toml", "path to the TOML config file")
	scanPath := flag.String("analyze", "", "analyze a single fingerprint image and print the report as JSON")
	name := flag.String("name", "", "patient name (with -analyze)")
	guardian := flag.String("guardian", "", "father's name (with -analyze)")
	age := flag.String("age", "", "patient age (with -analyze)")
	contact := flag.String("contact", "", "contact number (with -analyze)")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	out, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()

	client := inference.NewClient(cfg.Gemini)

	if *scanPath != "" {
		rec, err := patient.NewRecord(*name, *guardian, *age, *contact)
		if err != nil {
			log.Fatalf("Invalid patient details: %v", err)
		}
		if err := analyzeOnce(os.Stdout, client, *scanPath, rec); err != nil {
			log.Fatal(err)
		}
		return
	}

	srv := server.New(cfg, client, server.WithAccessLog(out))

	go func() {
		if err := srv.Listen(cfg.Server.Addr); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// analyzeOnce runs a single scan through a and writes the report to w as
// indented JSON.
func analyzeOnce(w io.Writer, a inference.Analyzer, path string, rec patient.Record) error {
	img, err := capture.Load(path)
	if err != nil {
		return err
	}
	if img, err = capture.Normalize(img); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result, err := a.Analyze(ctx, img)
	if err != nil {
		log.Printf("Analysis failed after %s: %v", time.Since(start), err)
		return &userError{inference.UserMessage(err)}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report.New(result, rec, time.Now()))
}

type userError struct{ msg string }

func (e *userError) Error() string { return e.msg }
