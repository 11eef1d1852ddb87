package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vctt94/bisonbotkit/logging"

	"splitsteal/config"
	"splitsteal/ledger"
	"splitsteal/server"
	"splitsteal/server/serverdb"
)

func realMain() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.Datadir, 0700); err != nil {
		return fmt.Errorf("create datadir: %w", err)
	}

	bknd, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        filepath.Join(cfg.Datadir, "logs", "splitsteald.log"),
		DebugLevel:     cfg.LogLevel,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
	})
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	log := bknd.Logger("SRVR")
	log.Infof("starting with config:\n%s", cfg)

	db, err := serverdb.NewBoltDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open archive db: %w", err)
	}
	defer db.Close()

	srv := server.NewServer(server.Config{
		Log:                log,
		Archive:            db,
		Ledger:             ledger.NewHTTPRecorder(cfg.LedgerEndpoint, cfg.LedgerContract, cfg.OperatorCredential),
		ListenAddr:         cfg.ListenAddr,
		NegotiationWindow:  cfg.NegotiationWindow,
		ChoiceWindow:       cfg.ChoiceWindow,
		ChallengeTTL:       cfg.ChallengeTTL,
		CohortCapacity:     cfg.CohortCapacity,
		CohortMinimum:      cfg.CohortMinimum,
		RegistrationWindow: cfg.RegistrationWindow,
		TournamentRounds:   cfg.TournamentRounds,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Infof("shutdown complete")
		return nil
	}
	return err
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
