// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/settings"
)

// --- Global Command Variables ---
var (
	configPath string
	vaultRoot  string
	logLevel   string
	logDir     string
	jsonLogs   bool

	serveAddr string
	dataDir   string

	scanSave bool

	rootCmd = &cobra.Command{
		Use:   "taskweave",
		Short: "A task extraction and indexing service for markdown vaults",
		Long: `Taskweave watches a vault of markdown and canvas documents,
extracts the tasks they contain, and serves a queryable index over HTTP.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing pipeline and HTTP API",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Index the vault once and print a summary",
		RunE:  runScan, // Defined in cmd_scan.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a settings YAML file")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", "", "Vault root directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (stderr only when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Force JSON logs on stderr")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persisted index snapshots")

	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Persist the resulting index snapshot")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
}

// loadSettings builds the effective configuration from the config file
// and flag overrides.
func loadSettings() (settings.Snapshot, error) {
	var snap settings.Snapshot
	switch {
	case configPath != "":
		loaded, err := settings.Load(configPath)
		if err != nil {
			return settings.Snapshot{}, err
		}
		snap = loaded
	case vaultRoot != "":
		abs, err := filepath.Abs(vaultRoot)
		if err != nil {
			return settings.Snapshot{}, err
		}
		snap = settings.Default(abs)
	default:
		return settings.Snapshot{}, errors.New("either --config or --vault is required")
	}

	if vaultRoot != "" && configPath != "" {
		abs, err := filepath.Abs(vaultRoot)
		if err != nil {
			return settings.Snapshot{}, err
		}
		snap.Vault.Root = abs
		if snap.Vault.ID == "" {
			snap.Vault.ID = abs
		}
	}
	if serveAddr != "" {
		snap.Server.Addr = serveAddr
	}
	return snap, nil
}
