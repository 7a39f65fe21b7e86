package main

import (
	"log/slog"
	"os"

	"github.com/imeetcentral/fattail-sync/internal/infrastructure/cli"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
