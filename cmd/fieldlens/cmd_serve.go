// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/FieldLens/services/fieldlens/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default FIELDLENS_HTTP_ADDR)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable gin debug mode and request logging")
	return cmd
}

// runServe blocks until ctx is canceled (SIGINT or SIGTERM from main), then
// drains in-flight requests.
func runServe(ctx context.Context, opts *rootOptions, addr string, debug bool) error {

	a, err := newApp(ctx, opts)
	if err != nil {
		return fail(err)
	}
	defer a.Close(context.Background())

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if addr == "" {
		addr = a.cfg.Service.HTTPAddr
	}
	router := server.NewRouter(server.NewHandlers(a.registry, a.auditor, a.ready), debug)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting fieldlens server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server failed", slog.String("error", err.Error()))
			return fail(err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down fieldlens server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown incomplete", slog.String("error", err.Error()))
	}
	return nil
}
