package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/email"
	"github.com/efeideo/drug-form/internal/logger"
	"github.com/efeideo/drug-form/internal/wizard"
)

var rootCmd = &cobra.Command{
	Use:           "mapform",
	Short:         "Belinostat & Pralatrexate MAP patient access form",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(notifyTestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger and notification gateway
func bootstrap(logOut io.Writer) (*config.Config, *logger.Logger, *email.Gateway, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewWithWriter(logOut, cfg.Log.Level, cfg.Log.Format)

	sender, err := email.NewSender(cfg.Email, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}

	return cfg, log, email.NewGateway(sender, log), nil
}

func newController(cfg *config.Config, notifier wizard.Notifier) *wizard.Controller {
	return wizard.NewController(wizard.PatientAccessSteps(), notifier, wizard.ControllerConfig{
		Recipient:     cfg.Email.SMTP.Receiver,
		SpamWindow:    cfg.Submission.SpamWindow,
		NotifyTimeout: cfg.Submission.NotifyTimeout,
	})
}
