package main

import (
	"context"
	"log"
	"os"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/store"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()
	ctx := context.Background()

	cli := commandLine{
		out:    os.Stdout,
		signer: auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL),
	}

	if needsStore(os.Args) {
		db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
		errAndDie(err)
		defer db.Close()

		cli.migrate = func(ctx context.Context) error { return store.Migrate(ctx, db) }
		cli.att = attendance.NewService(attendance.NewRepository(db.Client), attendance.Options{
			DefaultTTL: cfg.CodeTTL,
			MaxTTL:     cfg.MaxCodeTTL,
			Location:   cfg.Location(),
		})
	}

	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
