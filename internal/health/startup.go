// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/config"
	"github.com/lpsprint/sprint/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving: the database directory must be writable and the listen address
// usable. Config-level validation has already run by this point.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, filepath.Dir(cfg.DBPath)); err != nil {
		return fmt.Errorf("database directory check failed: %w", err)
	}

	if err := checkListenAddr(logger, cfg.APIListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}

	if len(cfg.Endpoints) == 1 {
		logger.Warn().
			Str("endpoint", cfg.Endpoints[0]).
			Msg("single rpc endpoint configured; no failover when it degrades")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// checkDataDir ensures the directory exists and is writable. The sqlite
// store needs to create the database file and its WAL sidecars there.
func checkDataDir(logger zerolog.Logger, path string) error {
	if path == "" || path == "." {
		path = "."
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", path, err)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("database directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("api listen address is valid")
	return nil
}
