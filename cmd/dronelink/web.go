package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"DroneLink-Apps/internal/core/network"
	"DroneLink-Apps/internal/dronelink"
	"DroneLink-Apps/internal/dronelinkapi"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the control API; the client picks the role",
	RunE:  runWeb,
}

var (
	webAddr   string
	staticDir string
)

func init() {
	webCmd.Flags().StringVarP(&webAddr, "addr", "a", "", "override http listen address")
	webCmd.Flags().StringVar(&staticDir, "static", "", "serve a front end from this directory")
}

func runWeb(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	addr := cfg.HTTP.Listen
	if webAddr != "" {
		addr = webAddr
	}

	link := dronelink.New(ctx, network.OpenLibp2p(cfg.Libp2pOptions()))
	defer link.Close()

	mux := http.NewServeMux()
	dronelinkapi.NewServer(link).Register(mux)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("DroneLink control API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Close the link first so streaming handlers see their channels end.
	link.Close()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return server.Shutdown(shutdownCtx)
}
