package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ronakgh97/r-share/internal/httpapi"
	"github.com/ronakgh97/r-share/internal/relay/config"
	"github.com/ronakgh97/r-share/internal/relay/registry"
	"github.com/ronakgh97/r-share/internal/relay/rendezvous"
	"github.com/ronakgh97/r-share/internal/relaylog"
	"github.com/ronakgh97/r-share/internal/relayserver"
)

var (
	flagConfigFile      string
	flagHTTPAddr        string
	flagSocketAddr      string
	flagSocketPort      int
	flagBacklog         int
	flagBlockingTimeout int
	flagSessionTTL      int
	flagLogLevel        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "runs the rendezvous HTTP API and the TCP relay server",
	Long:  "serve starts the control-plane HTTP rendezvous API and the TCP data-plane relay server together, shutting both down on SIGINT/SIGTERM",
	Run:   runServe,
}

func init() {
	defaults := config.Default()
	serveCmd.Flags().StringVar(&flagConfigFile, "config", "", "optional YAML config file layered under the flags below")
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", defaults.HTTPAddr, "control-plane HTTP listen address")
	serveCmd.Flags().StringVar(&flagSocketAddr, "socket-addr", defaults.SocketAddr, "TCP data-plane relay listen address")
	serveCmd.Flags().IntVar(&flagSocketPort, "socket-port", defaults.SocketPort, "port advertised to clients for the TCP relay")
	serveCmd.Flags().IntVar(&flagBacklog, "backlog", defaults.Backlog, "requested TCP listen backlog (carried for parity, not applied to the listener)")
	serveCmd.Flags().IntVar(&flagBlockingTimeout, "blocking-timeout-ms", int(defaults.BlockingTimeout.Milliseconds()), "milliseconds Initiate/Listen block waiting for a match")
	serveCmd.Flags().IntVar(&flagSessionTTL, "session-ttl-ms", int(defaults.SessionTTL.Milliseconds()), "milliseconds a session stays live after creation")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "debug, info, warn, or error")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Default()
	if flagConfigFile != "" {
		if err := config.LoadFile(&cfg, flagConfigFile); err != nil {
			fmt.Println("failed to load config file:", err)
			return
		}
	}
	applyFlags(cmd, &cfg)

	logger := relaylog.New(parseLevel(cfg.LogLevel))

	reg := registry.New()
	rendezvousCfg := rendezvous.Config{
		BlockingTimeout: cfg.BlockingTimeout,
		SessionTTL:      cfg.SessionTTL,
		SocketPort:      cfg.SocketPort,
	}
	service := rendezvous.New(reg, logger, rendezvousCfg)

	relaySrv, err := relayserver.NewServer(relayserver.Config{Addr: cfg.SocketAddr, Backlog: cfg.Backlog}, reg, logger)
	if err != nil {
		logger.Error("failed to start relay server", "error", err)
		return
	}

	httpHandler := httpapi.New(service, logger)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpHandler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("tcp relay listening", "addr", relaySrv.Addr())
		return relaySrv.Start(gctx)
	})
	group.Go(func() error {
		logger.Info("http control plane listening", "addr", cfg.HTTPAddr)
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()
		select {
		case <-gctx.Done():
			return httpSrv.Shutdown(context.Background())
		case err := <-errCh:
			return err
		}
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server exited with error", "error", err)
	}

	stats := reg.Stats()
	logger.Info("registry stats at shutdown",
		"sessionsCreated", stats.SessionsCreated,
		"sessionsMatched", stats.SessionsMatched,
		"sessionsTimedOut", stats.SessionsTimedOut,
		"transfersComplete", stats.TransfersComplete,
		"bytesTransferred", relaylog.Bytes(reg.TotalBytesTransferred()))
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("http-addr") || cfg.HTTPAddr == "" {
		cfg.HTTPAddr = flagHTTPAddr
	}
	if flags.Changed("socket-addr") || cfg.SocketAddr == "" {
		cfg.SocketAddr = flagSocketAddr
	}
	if flags.Changed("socket-port") || cfg.SocketPort == 0 {
		cfg.SocketPort = flagSocketPort
	}
	if flags.Changed("backlog") || cfg.Backlog == 0 {
		cfg.Backlog = flagBacklog
	}
	if flags.Changed("blocking-timeout-ms") || cfg.BlockingTimeout == 0 {
		cfg.BlockingTimeout = time.Duration(flagBlockingTimeout) * time.Millisecond
	}
	if flags.Changed("session-ttl-ms") || cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Duration(flagSessionTTL) * time.Millisecond
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = flagLogLevel
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
