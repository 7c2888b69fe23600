package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/mikebet/handlers"
	mw "github.com/padraicbc/mikebet/middleware"
	"github.com/padraicbc/mikebet/settlement"
)

func newServeCommand() *cobra.Command {
	var worker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, plus the feed cycle or settlement loop in the background",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.cfg.RequireJWT(); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var wg sync.WaitGroup
			if worker {
				stop, err := startWorker(ctx, a, &wg)
				if err != nil {
					return err
				}
				defer stop()
			}

			err := serve(ctx, a)
			cancel()
			wg.Wait()
			return err
		}),
	}
	cmd.Flags().BoolVar(&worker, "worker", true, "run the feed cycle (with MYSQL_DSN) or the settlement loop alongside the API")
	return cmd
}

// startWorker runs the background loop: full cycles when a staging database
// is configured, settlement passes otherwise.
func startWorker(ctx context.Context, a *app, wg *sync.WaitGroup) (func(), error) {
	if a.cfg.MySQLDSN == "" {
		p := settlement.NewProcessor(a.settler, a.cfg.SettleInterval, a.log)
		wg.Go(func() { p.Start(ctx) })
		return func() {}, nil
	}

	src, err := openStaging(ctx, a)
	if err != nil {
		return nil, err
	}
	r := newRunner(a, src)
	wg.Go(func() { r.Start(ctx) })
	return func() {
		if err := src.Close(); err != nil {
			a.log.Warn("close staging", zap.Error(err))
		}
	}, nil
}

func newEcho(a *app) *echo.Echo {
	logger := a.log
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	h := handlers.New(handlers.Deps{
		Catalog:    a.catalog,
		Wallets:    a.wallets,
		Wagers:     a.wagers,
		Users:      a.users,
		Reconciler: a.reconciler,
		Settler:    a.settler,
		Effector:   a.effector,
		JWTKey:     a.cfg.JWTKey(),
		Log:        a.log,
	})
	h.Routes(e, mw.JWT(a.cfg.JWTKey()), mw.Admin(a.cfg.IsAdmin))
	return e
}

func serve(ctx context.Context, a *app) error {
	e := newEcho(a)

	var s *http.Server
	if a.cfg.Debug || len(a.cfg.TLSDomains) == 0 {
		a.log.Info("starting server", zap.String("mode", "plain"), zap.String("addr", a.cfg.Port))
		s = &http.Server{Addr: a.cfg.Port, Handler: e}
	} else {
		autoTLS := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(".cache"),
			HostPolicy: autocert.HostWhitelist(a.cfg.TLSDomains...),
		}
		a.log.Info("starting server", zap.String("mode", "tls"), zap.Strings("domains", a.cfg.TLSDomains))
		s = &http.Server{Addr: ":443", Handler: e, TLSConfig: autoTLS.TLSConfig()}
	}
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 120 * time.Second
	s.IdleTimeout = 15 * time.Second

	errc := make(chan error, 1)
	go func() {
		if s.TLSConfig != nil {
			errc <- s.ListenAndServeTLS("", "")
			return
		}
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutCtx)
}
