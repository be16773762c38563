package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/matchkeeper/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("matchkeeper failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
