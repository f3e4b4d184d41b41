package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/index-composite/internal/config"
	"github.com/forest-guardian/index-composite/internal/logging"
	"github.com/forest-guardian/index-composite/internal/notification"
	"github.com/forest-guardian/index-composite/internal/ui"
)

var (
	cfg        *config.Config
	remoteAddr string
	quiet      bool
)

func printBanner() {
	figure1 := figure.NewFigure("Index", "isometric1", true)
	figure2 := figure.NewFigure("Composite", "isometric1", true)
	color.Cyan(figure1.String())
	color.Cyan(figure2.String())
	fmt.Println()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "indexcomposite",
		Short:         "Build NDVI/NDMI/NDWI composites for regions of interest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level)
			if !quiet {
				printBanner()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "address of a remote platform served by 'indexcomposite serve'")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print the banner")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		ui.PrintWarning(fmt.Sprintf("Error loading .env file: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			ui.PrintError(fmt.Sprintf("PANIC: %v", r))
			errMessage := fmt.Sprintf("indexcomposite panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			if err := notification.DiscordFromEnv().Error(errMessage); err != nil {
				ui.PrintError(fmt.Sprintf("Failed to send notification: %s", err))
			}
			os.Exit(2)
		}
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
