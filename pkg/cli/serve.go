package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dan-solli/moex/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	return server.New(app, logger.Named("http")).Run(ctx, cfg.Server.Addr)
}
