package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"reelforge/internal/infra"
	"reelforge/internal/sqlinline"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		amountFlag int
		setFlag    bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.IntVar(&amountFlag, "amount", 1, "credits to add (or the new balance with -set)")
	flag.BoolVar(&setFlag, "set", false, "replace the balance instead of adding to it")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if setFlag && amountFlag < 0 {
		exitWithError(errors.New("-amount must be >= 0 with -set"))
	}
	if !setFlag && amountFlag <= 0 {
		exitWithError(errors.New("-amount must be positive"))
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	var (
		id, externalID, gotEmail, name string
		credits                        int
		createdAt, updatedAt           time.Time
	)
	row := runner.QueryRow(ctx, sqlinline.QGrantCreditsByEmail, userID, amountFlag, setFlag, email)
	if err := row.Scan(&id, &externalID, &gotEmail, &name, &credits, &createdAt, &updatedAt); err != nil {
		if infra.IsNoRows(err) {
			exitWithError(errors.New("user not found"))
		}
		exitWithError(fmt.Errorf("failed to update credits: %w", err))
	}

	fmt.Printf("User %s (%s) now has %d credits\n", id, gotEmail, credits)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
