package main

import (
	"log/slog"
	"os"

	"github.com/Lllllllleong/documentrestoreflow/cmd/docflow/commands"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
