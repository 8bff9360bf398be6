/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codegenie/apiserver/internal/mail"
	"github.com/codegenie/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// workerCmd drains the OTP mail queue into SMTP.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued OTP mails over SMTP",
	Long: `Consumes OTP mail jobs published by the API server when MAIL_TRANSPORT is
rabbitmq or pubsub, and sends them with the configured SMTP account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Mail.Transport == "memory" {
			return errors.New("the memory transport is drained by the server itself")
		}
		if !cfg.SMTP.Enabled() {
			return errors.New("SMTP_EMAIL and SMTP_PASSWORD are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := server.OpenQueue(ctx, cfg)
		if err != nil {
			return err
		}
		defer queue.Close()

		log := cliLogger(cfg)
		worker := mail.NewWorker(queue, cfg.Mail.Channel, mail.NewSMTPMailer(cfg.SMTP), log)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mail worker: %w", err)
		}
		log.Info(context.Background(), "mail worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
