package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	nodeconfig "defil/config"
	"defil/core/events"
	"defil/core/state"
	nativecommon "defil/native/common"
	"defil/native/market"
	"defil/observability/logging"
	"defil/observability/metrics"
	"defil/services/auditlog"
	"defil/services/defild/config"
	"defil/services/defild/server"
	"defil/storage"
)

const serviceName = "defild"

func main() {
	var (
		servicePath string
		nodePath    string
	)
	flag.StringVar(&servicePath, "config", "defild.yaml", "path to the defild service config (YAML)")
	flag.StringVar(&nodePath, "node-config", "", "path to the market config (TOML); overrides node_config")
	flag.Parse()

	if err := run(servicePath, nodePath); err != nil {
		fmt.Fprintf(os.Stderr, "defild: %v\n", err)
		os.Exit(1)
	}
}

func run(servicePath, nodePath string) error {
	svcCfg, err := config.Load(servicePath)
	if err != nil {
		return fmt.Errorf("load service config: %w", err)
	}
	if strings.TrimSpace(nodePath) == "" {
		nodePath = svcCfg.NodeConfig
	}
	if nodePath == "" {
		nodePath = "defil.toml"
	}
	nodeCfg, err := nodeconfig.Load(nodePath)
	if err != nil {
		return fmt.Errorf("load market config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("DEFIL_ENV"))
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level:      nodeCfg.Log.Level,
		File:       nodeCfg.Log.File,
		MaxSizeMB:  nodeCfg.Log.MaxSizeMB,
		MaxBackups: nodeCfg.Log.MaxBackups,
	})

	params, err := nodeCfg.MarketParams()
	if err != nil {
		return err
	}
	model, err := nodeCfg.InterestModel()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(nodeCfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(nodeCfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	mgr := state.NewManager(db)

	engine, err := market.NewEngine(params)
	if err != nil {
		return err
	}
	engine.SetState(mgr)
	engine.SetInterestModel(model)
	engine.SetLogger(logger.With(slog.String("module", "market")))

	pauses := nativecommon.NewPauseSet()
	if nodeCfg.Pauses.Market {
		pauses.Set("market", true)
	}
	engine.SetPauses(pauses)

	emitters := events.Fanout{metrics.Market()}
	var audit *auditlog.Store
	if dsn := strings.TrimSpace(nodeCfg.AuditLogDSN); dsn != "" {
		auditDB, err := auditlog.Open(dsn)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		audit, err = auditlog.New(auditDB, logger.With(slog.String("module", "auditlog")))
		if err != nil {
			return err
		}
		emitters = append(emitters, audit)
		seq, head := audit.Head()
		logger.Info("audit log ready",
			slog.Uint64("seq", seq),
			slog.String("head", head),
			logging.MaskField("audit_dsn", dsn))
	}
	engine.SetEmitter(emitters)

	srv, err := server.New(server.Options{
		Engine: engine,
		State:  mgr,
		Pauses: pauses,
		Audit:  audit,
		Config: svcCfg,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", svcCfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", svcCfg.ListenAddress, err)
	}
	if !svcCfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return fmt.Errorf("plaintext defild mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadTimeout:       svcCfg.ReadTimeout,
		ReadHeaderTimeout: svcCfg.ReadTimeout,
		WriteTimeout:      svcCfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("defild listening",
			slog.String("address", listener.Addr().String()),
			slog.String("network", nodeCfg.NetworkName),
			slog.Bool("tls", svcCfg.TLS.Enabled()))
		var serveErr error
		if svcCfg.TLS.Enabled() {
			serveErr = httpServer.ServeTLS(listener, svcCfg.TLS.CertPath, svcCfg.TLS.KeyPath)
		} else {
			serveErr = httpServer.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}
	logger.Info("defild stopped")
	return nil
}
