package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/andresmejia3/faceroll/internal/web"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the photo upload endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("host") {
			Cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			Cfg.Server.Port = servePort
		}

		ref, err := Cfg.Reference.Embedding()
		if err != nil {
			utils.Die("Invalid reference encoding", err, nil)
		}

		eng := mustEngine(ctx, false)
		defer eng.Close()

		h := &web.Handlers{
			Recognizer:    eng,
			Gallery:       Gallery,
			Reference:     ref,
			ReferenceName: Cfg.Reference.Name,
			Matcher:       matcher.New(Cfg.Matching.Threshold),
			MaxUpload:     Cfg.Server.MaxUpload,
		}
		srv := web.NewServer(Cfg.Server.Addr(), h, Log)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(func() {
				fmt.Fprintf(os.Stderr, "🌐 Listening on http://%s\n", Cfg.Server.Addr())
				daemon.SdNotify(false, daemon.SdNotifyReady)
			})
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		daemon.SdNotify(false, daemon.SdNotifyStopping)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
