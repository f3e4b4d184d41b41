package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/index-composite/internal/remote"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local platform over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.GRPC.Addr
			}
			local, err := newLocalPlatform(false)
			if err != nil {
				return err
			}
			defer local.Close()

			srv := remote.NewServer(local.Engine)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				slog.Info("shutting down")
				srv.Stop()
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default GRPC_ADDR)")
	return cmd
}
