/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stemreport/apiserver/config"
	"github.com/stemreport/apiserver/internal/db"
	"github.com/stemreport/apiserver/internal/logging"
	"github.com/stemreport/apiserver/internal/mq"
	"github.com/stemreport/apiserver/internal/notify"
	"github.com/stemreport/apiserver/internal/store"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes report lifecycle events and notifies reviewers and submitters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND must be set to run the worker")
		}
		defer broker.Close()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		notifier := notify.NewNotifier(store.NewUserRepository(dbConn), logger)
		events := mq.NewReportEvents(broker, cfg.MQ.Channel)

		logger.Info().Str("channel", cfg.MQ.Channel).Msg("worker consuming report events")
		err = events.Subscribe(ctx, notifier.Handle, func(msg mq.Message, err error) {
			logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable report event")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
