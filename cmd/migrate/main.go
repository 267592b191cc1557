package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"reelforge/internal/db"
	"reelforge/internal/infra"
)

func main() {
	var (
		printFlag   bool
		timeoutFlag time.Duration
	)
	flag.BoolVar(&printFlag, "print", false, "print the embedded schema and exit")
	flag.DurationVar(&timeoutFlag, "timeout", 30*time.Second, "migration timeout")
	flag.Parse()

	if printFlag {
		fmt.Print(db.Schema())
		return
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	conn, err := db.Open(ctx, dbURL)
	if err != nil {
		exitWithError(err)
	}
	defer conn.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()
	applied, err := db.Migrate(ctx, conn, logger)
	if err != nil {
		exitWithError(err)
	}
	if applied {
		fmt.Printf("schema %s applied\n", db.Version())
	} else {
		fmt.Printf("schema %s already current\n", db.Version())
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
