package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"statefacts/internal/adapters/httpapi"
	"statefacts/internal/core"
	"statefacts/internal/telemetry"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, addrOverride string) (err error) {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx, opts, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() { err = rt.closeWith(err) }()

	telCfg := rt.cfg.TelemetryConfig()
	telCfg.TraceOutput = cmd.ErrOrStderr()
	tel, err := telemetry.Setup(telCfg)
	if err != nil {
		return err
	}

	svc := core.NewService(rt.catalog, rt.store, append(rt.serviceOptions(), tel.ServiceOptions()...)...)
	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(svc, httpapi.Options{
		Logger:         rt.logger,
		MetricsHandler: tel.MetricsHandler,
		VarsHandler:    tel.VarsHandler,
		WriteRateLimit: rt.cfg.HTTP.WriteRateLimit,
		WriteRateBurst: rt.cfg.HTTP.WriteRateBurst,
		Tracing:        tel.OTel,
		ServiceName:    telCfg.ServiceName,
	})

	addr := rt.cfg.HTTP.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	srv := httpapi.Server(addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("http server listening",
			"addr", addr,
			"storage", rt.cfg.Storage.Driver,
			"states", rt.catalog.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		rt.logger.Info("http server shutting down")
		return errors.Join(srv.Shutdown(shutdownCtx), tel.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
