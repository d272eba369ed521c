package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/efeideo/drug-form/internal/tui"
)

var fillAccessible bool

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill in the form interactively in the terminal",
	RunE:  runFill,
}

func init() {
	fillCmd.Flags().BoolVar(&fillAccessible, "accessible", false, "use plain prompts suitable for screen readers")
}

func runFill(cmd *cobra.Command, args []string) error {
	// Structured logs go to stderr so they can be redirected away from the form
	cfg, _, gateway, err := bootstrap(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := tui.NewRunner(newController(cfg, gateway), cmd.OutOrStdout(), fillAccessible)
	if _, err := runner.Run(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted, nothing was submitted.")
			return nil
		}
		if errors.Is(err, tui.ErrDeclined) {
			fmt.Fprintln(cmd.OutOrStdout(), "This form is intended for healthcare professionals only.")
			return nil
		}
		return err
	}
	return nil
}
