package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/koscakluka/ema-voicechat/core/sessionserver"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-voicechat/cmd/voicechat-backend")

var (
	addr           string
	model          string
	allowedOrigins []string
)

var rootCmd = &cobra.Command{
	Use:   "voicechat-backend",
	Short: "Issue short-lived realtime session keys to voicechat clients",
	Long: `Serves GET /session, which creates a realtime session upstream with the
key from $OPENAI_API_KEY and returns the ephemeral client secret.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to $VOICECHAT_BACKEND_ADDR or "+sessionserver.DefaultAddr+")")
	rootCmd.Flags().StringVar(&model, "model", "", "Realtime model to create sessions for")
	rootCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "Browser origins allowed to call the backend")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := sessionserver.LoadFromEnv()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if model != "" {
		cfg.Model = model
	}
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = map[string]struct{}{}
		for _, origin := range allowedOrigins {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins[origin] = struct{}{}
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sessionserver.New(cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Listening", slog.String("addr", cfg.Addr), slog.String("model", cfg.Model))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
