package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/trendscope/internal/notify"
)

// notifyCmd creates the "notify" command group.
func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test message through every configured channel",
		RunE:  runNotifyTest,
	})
	return cmd
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging)

	// Probe every configured channel even when summaries are switched off.
	cfg.Notification.Enabled = true
	dispatcher := notify.NewDispatcher(&cfg.Notification, nil, logger)
	if dispatcher.Len() == 0 {
		return errors.New("no notification channel configured (set WECHAT_WEBHOOK_URL or SMTP_SERVER and EMAIL_RECIPIENT)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := dispatcher.Test(ctx); err != nil {
		return fmt.Errorf("test notification: %w", err)
	}
	fmt.Printf("✅ Test message sent through %d channel(s)\n", dispatcher.Len())
	return nil
}
