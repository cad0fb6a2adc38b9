package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"prism-board/api"
	"prism-board/config"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen-addr", "", "address to listen on (env LISTEN_ADDR)")
	cmd.Flags().Bool("pprof", false, "expose /debug/pprof routes (env PPROF)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	e := newServer(sess)

	errc := make(chan error, 1)
	go func() {
		sess.logger.WithField("addr", cfg.ListenAddr).Info("listening")
		errc <- e.Start(cfg.ListenAddr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		sess.logger.Info("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	if err := shutdown(e, sess, cfg.ShutdownWait); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// shutdown drains the HTTP server and then closes the board. Each step gets
// its own deadline, so the final flush still runs after a slow drain.
func shutdown(e *echo.Echo, sess *session, wait time.Duration) error {
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), wait)
	defer cancelHTTP()
	if err := e.Shutdown(httpCtx); err != nil {
		sess.logger.WithError(err).Error("http shutdown")
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), wait)
	defer cancelClose()
	if err := sess.close(closeCtx); err != nil {
		sess.logger.WithError(err).Error("board shutdown")
		return err
	}
	return nil
}

func newServer(sess *session) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Shutdown waits for handlers, and the board stream only returns when
	// its request context ends. Cancel every request context once shutdown
	// starts.
	base, cancel := context.WithCancel(context.Background())
	e.Server.BaseContext = func(net.Listener) context.Context { return base }
	e.Server.RegisterOnShutdown(cancel)

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))

	var auth api.Authenticator
	if a := api.NewAuth(sess.cfg.APISecret); a != nil {
		auth = a
	} else {
		sess.logger.Warn("BOARD_API_SECRET not set, API is unauthenticated")
	}
	api.Register(e, sess.ctrl, auth, sess.logger)

	if sess.cfg.Pprof {
		pprof.Register(e)
	}
	return e
}
