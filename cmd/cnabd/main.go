// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// cnabd ingests CNAB files named on the command line: detect, parse,
// validate, persist, and optionally deliver each result to the configured
// webhook. The HTTP controller in front of this module lives elsewhere;
// this binary is the process entry point owning every collaborator's
// lifecycle.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/felipebarte/cnab/ingest"
	"github.com/felipebarte/cnab/persist"
	"github.com/felipebarte/cnab/swap"
	"github.com/felipebarte/cnab/webhook"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error("cnabd failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config, paths, err := ParseCNABd(ctx, args)
	if err != nil {
		return err
	}

	logLevel, err := log.LvlFromString(config.LogLevel)
	if err != nil {
		return err
	}
	log.Root().SetHandler(log.LvlFilterHandler(logLevel, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	store, err := persist.New(ctx, config.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var checker ingest.BoletoChecker
	if config.Swap.ClientID != "" {
		client, err := swap.NewClient(config.Swap)
		if err != nil {
			return err
		}
		checker = client
	}

	dispatcher := webhook.NewDispatcher(config.Webhook)

	processor, err := ingest.NewProcessor(config.Ingest, store, dispatcher, checker)
	if err != nil {
		return err
	}
	service := ingest.NewService(processor)
	if err := service.Start(ctx); err != nil {
		return err
	}
	defer service.StopAndWait()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("shutting down", "signal", sig)
		cancel()
	}()

	if len(paths) == 0 {
		log.Warn("no input files given")
		return nil
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res, err := service.Submit(ctx, content, ingest.Options{FileName: filepath.Base(path)})
		if err != nil {
			log.Error("ingest failed", "file", path, "err", err)
			continue
		}
		if err := encoder.Encode(res); err != nil {
			return err
		}
	}
	return nil
}
