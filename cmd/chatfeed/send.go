package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adi-253/chatfeed/internal/feed"
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Send one message to the thread and print its ID",
	Args:  cobra.MinimumNArgs(1),
	RunE:  sendOnce,
}

var flagReplyTo int64

func init() {
	sendCmd.Flags().Int64Var(&flagReplyTo, "reply", 0, "message ID to reply to")
	rootCmd.AddCommand(sendCmd)
}

func sendOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	sess, err := openThread(ctx, cfg, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return err
	}
	if !cfg.Push {
		sess.page.View.Push = nil
	}
	syncer, err := feed.New(feed.Config{
		View:       sess.page.View,
		Surface:    feed.NewList(nil),
		HTTPClient: sess.client,
		Header:     sess.header,
		Logger:     logger,
		Seed:       sess.page.SeedIDs,
	})
	if err != nil {
		return err
	}
	defer syncer.Close()

	// Mirror the message to push subscribers; they fall back to polling
	// when the store is unreachable.
	if err := syncer.OpenPush(ctx); err != nil && !errors.Is(err, feed.ErrPushDisabled) {
		logger.Warn().Err(err).Msg("push unavailable, message will not be mirrored")
	}

	m, err := syncer.Send(ctx, strings.Join(args, " "), models.ID(flagReplyTo))
	if err != nil {
		return err
	}
	if m == nil {
		return errors.New("message is empty")
	}
	fmt.Fprintln(cmd.OutOrStdout(), m.ID)
	return nil
}
