package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/efeideo/drug-form/internal/email"
	"github.com/efeideo/drug-form/internal/wizard"
)

var notifyRecipient string

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test notification with the configured provider",
	RunE:  runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyRecipient, "to", "", "recipient (defaults to SMTP_RECEIVER)")
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, _, gateway, err := bootstrap(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	to := notifyRecipient
	if to == "" {
		to = cfg.Email.SMTP.Receiver
	}

	timeout := cfg.Submission.NotifyTimeout
	if timeout <= 0 {
		timeout = wizard.DefaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	d := gateway.Send(ctx, wizard.NotificationSubject+" (test)", email.TestNotificationText(cfg.Email.AppName, time.Now()), to)
	if !d.Sent {
		return fmt.Errorf("notification not sent: %w", d.Err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent to %s via %s\n", to, cfg.Email.Provider)
	return nil
}
