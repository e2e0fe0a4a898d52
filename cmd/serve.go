package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/jensneuse/abstractlogger"
	"github.com/spf13/cobra"

	"github.com/wundergraph/graphql-stitch/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "serve composes the configured services and starts the gateway",
	Example: "stitch serve --config gateway.yaml --listen :4000",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := bootGateway(ctx)
		if err != nil {
			return err
		}
		defer gw.flush() // nolint

		handler, err := gw.handler()
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              gw.config.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		gw.logger.Info("serve: listening",
			log.String("addr", gw.config.Listen),
			log.String("graphql", gw.config.GraphQLPath),
			log.String("fingerprint", fmt.Sprintf("%016x", gw.merged.Fingerprint())),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Access Playground on: http://%s%s\n", prettyAddr(gw.config.Listen), gw.config.PlaygroundPath)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		gw.logger.Info("serve: shutting down")
		return server.Shutdown(shutdownCtx)
	},
}

func prettyAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return strings.Replace(addr, "0.0.0.0", "localhost", -1)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String(config.KeyListen, "", "address the gateway listens on")
	_ = v.BindPFlag(config.KeyListen, serveCmd.Flags().Lookup(config.KeyListen))
}
