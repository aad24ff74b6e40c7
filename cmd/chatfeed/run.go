package main

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adi-253/chatfeed/internal/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the thread, stream new messages and send what you type",
	Long: `run prints every newly rendered message fragment to stdout and reads
stdin line by line:

  /reply N          reply to message N with the next line
  /noreply          cancel the reply target
  /react N EMOJI    react to message N (no emoji removes your reaction)
  /edit N TEXT      replace the text of your message N
  anything else     send it as a message`,
	RunE: runFeed,
}

var (
	flagMetricsAddr string
	flagNoPush      bool
)

func init() {
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&flagNoPush, "no-push", false, "disable the realtime push transport")
	rootCmd.AddCommand(runCmd)
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if flagNoPush {
		cfg.Push = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Long polls must outlive the backend's wait.
	client := &http.Client{Timeout: cfg.LongPollWait + 30*time.Second}
	sess, err := openThread(ctx, cfg, client)
	if err != nil {
		return err
	}
	if !cfg.Push {
		sess.page.View.Push = nil
	}

	reg := prometheus.NewRegistry()
	metrics := feed.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	syncer, err := feed.New(feed.Config{
		View:       sess.page.View,
		Surface:    feed.NewList(cmd.OutOrStdout()),
		HTTPClient: sess.client,
		Header:     sess.header,
		Logger:     logger,
		Metrics:    metrics,
		Location:   cfg.Location,
		Poll: feed.PollOptions{
			Interval: cfg.PollInterval,
			Backoff:  cfg.PollBackoff,
			Wait:     cfg.LongPollWait,
		},
		Seed: sess.page.SeedIDs,
	})
	if err != nil {
		return err
	}
	syncer.Start(ctx)
	defer syncer.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring input")
				continue
			}
			if err := apply(ctx, syncer, c); err != nil {
				log.Error().Err(err).Msg("command failed")
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
