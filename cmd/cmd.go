// Package cmd provides CLI commands for Vantigo.
//
// Commands:
//   - serve: HTTP API server for prompt assembly
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented for the serve
// command via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the Vantigo CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Vantigo - Chatbot prompt assembly service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vantigo serve [addr] Start HTTP API server (default: 127.0.0.1:8400)")
	fmt.Println("  vantigo migrate      Apply database migrations and exit")
	fmt.Println("  vantigo --version    Show version information")
	fmt.Println("  vantigo --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY       Required: Gemini API key for embeddings")
	fmt.Println("  HMAC_SECRET          Required: 32+ byte cookie signing secret")
	fmt.Println("  DATABASE_URL         Optional: overrides postgres_* config")
	fmt.Println("  DEBUG                Optional: enable debug logging")
}
