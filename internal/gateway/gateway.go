// ABOUTME: Wires the mailbox, bridge, connector, and job runner into a running service.
// ABOUTME: Owns both HTTP listeners and the startup/shutdown lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nuribom/relay-gateway/internal/bridge"
	"github.com/nuribom/relay-gateway/internal/config"
	"github.com/nuribom/relay-gateway/internal/connector"
	"github.com/nuribom/relay-gateway/internal/jobrunner"
	"github.com/nuribom/relay-gateway/internal/mailbox"
)

// Gateway holds the assembled service: the message mailbox, the
// conversation bridge, and the two HTTP servers that expose them.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	box    *mailbox.Mailbox
	bridge *bridge.Bridge
	runner *jobrunner.Client

	mailboxServer *http.Server
	bridgeServer  *http.Server
}

// New assembles the gateway from configuration. Nothing is listening yet;
// call Run to start serving.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	var box *mailbox.Mailbox
	if cfg.Mailbox.Capacity > 0 {
		box = mailbox.NewBounded(cfg.Mailbox.Capacity, mailbox.Policy(cfg.Mailbox.Policy))
	} else {
		box = mailbox.New()
	}

	channel := connector.New(connector.Config{
		AppID:       cfg.Bot.AppID,
		AppPassword: cfg.Bot.AppPassword,
		TenantID:    cfg.Bot.TenantID,
	}, logger.With("component", "connector"))

	runner := jobrunner.New(jobrunner.Config{
		BaseURL:      cfg.Runner.BaseURL,
		AppID:        cfg.Runner.AppID,
		AppSecret:    cfg.Runner.AppSecret,
		Organization: cfg.Runner.Organization,
		Tenant:       cfg.Runner.Tenant,
		FolderID:     cfg.Runner.FolderID,
		ProcessName:  cfg.Runner.ProcessName,
	}, logger.With("component", "jobrunner"))

	br := bridge.New(bridge.Options{
		Bot:             cfg.Bot,
		Keywords:        cfg.Triggers.Keywords,
		MailboxMode:     cfg.Mailbox.Mode,
		DefaultKey:      cfg.Mailbox.DefaultKey,
		PollingInterval: cfg.Runner.PollingInterval,
		TaskOwnerID:     cfg.Runner.TaskOwnerID,
	}, box, runner, channel, logger)

	gw := &Gateway{
		config: cfg,
		logger: logger,
		box:    box,
		bridge: br,
		runner: runner,
	}

	mailboxMux := http.NewServeMux()
	mailbox.NewServer(box, cfg.Mailbox, logger).RegisterRoutes(mailboxMux)
	gw.mailboxServer = &http.Server{
		Addr:              cfg.Server.MailboxAddr,
		Handler:           mailboxMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bridgeMux := http.NewServeMux()
	bridge.NewServer(br, logger).RegisterRoutes(bridgeMux)
	gw.bridgeServer = &http.Server{
		Addr:              cfg.Server.BridgeAddr,
		Handler:           bridgeMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// setupListeners creates the two TCP listeners.
func (g *Gateway) setupListeners() (mailboxLn, bridgeLn net.Listener, err error) {
	mailboxLn, err = net.Listen("tcp", g.config.Server.MailboxAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on mailbox address: %w", err)
	}

	bridgeLn, err = net.Listen("tcp", g.config.Server.BridgeAddr)
	if err != nil {
		_ = mailboxLn.Close()
		return nil, nil, fmt.Errorf("listening on bridge address: %w", err)
	}

	return mailboxLn, bridgeLn, nil
}

// startServers starts both HTTP servers in goroutines, returning an error channel.
func (g *Gateway) startServers(mailboxLn, bridgeLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("mailbox server listening", "addr", mailboxLn.Addr().String())
		if err := g.mailboxServer.Serve(mailboxLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("mailbox server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("bridge server listening", "addr", bridgeLn.Addr().String())
		if err := g.bridgeServer.Serve(bridgeLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("bridge server: %w", err)
		}
	}()

	return errCh
}

// authenticate obtains the orchestrator credential and hands it to the
// bridge. Runs after the listeners are up; failure aborts startup.
func (g *Gateway) authenticate(ctx context.Context) error {
	cred, err := g.runner.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator authentication: %w", err)
	}
	g.bridge.SetCredential(cred)
	return nil
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts both servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if startup or a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	mailboxLn, bridgeLn, err := g.setupListeners()
	if err != nil {
		return err
	}

	errCh := g.startServers(mailboxLn, bridgeLn)

	// Listeners first, credential second: a slow identity service must not
	// keep the ports unbound. A refusal still aborts startup.
	if err := g.authenticate(ctx); err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown stops both servers with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops both HTTP servers.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.mailboxServer.Shutdown(ctx); err != nil {
		g.logger.Error("mailbox shutdown error", "error", err)
		errs = append(errs, err)
	}
	if err := g.bridgeServer.Shutdown(ctx); err != nil {
		g.logger.Error("bridge shutdown error", "error", err)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	g.logger.Info("gateway stopped")
	return nil
}
