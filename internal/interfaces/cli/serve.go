package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/siga-gateway/internal/application/container"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/metrics"
	apphttp "github.com/jhoicas/siga-gateway/internal/interfaces/http"
	"github.com/jhoicas/siga-gateway/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var purgeEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Servidor operativo (health, ready, métricas) con limpieza periódica de sesiones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			a.log.Info().
				Str("env", a.cfg.App.Env).
				Str("app", a.cfg.App.Name).
				Str("backend", a.cfg.Session.Backend).
				Bool("mobile_id", a.cfg.MobileID.Enabled()).
				Bool("smart_id", a.cfg.SmartID.Enabled()).
				Msg("iniciando aplicación")

			go runJanitor(ctx, svc.containers, svc.recorder, a.cfg.Session.TTL(), purgeEvery, a.log)

			srv := apphttp.NewApp(apphttp.RouterDeps{
				AppName:  a.cfg.App.Name,
				Backend:  a.cfg.Session.Backend,
				Store:    svc.pinger,
				Registry: svc.recorder.Registry(),
				Log:      a.log,
			})
			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", a.cfg.HTTP.Addr()).Msg("servidor HTTP escuchando")
				errCh <- srv.Listen(a.cfg.HTTP.Addr())
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.log.Info().Msg("apagando servidor...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
				a.log.Error().Err(err).Msg("error al apagar servidor")
				return err
			}
			a.log.Info().Msg("servidor detenido")
			return nil
		},
	}
	cmd.Flags().DurationVar(&purgeEvery, "purge-every", 5*time.Minute, "intervalo de limpieza de sesiones vencidas")
	return cmd
}

// runJanitor elimina periódicamente las sesiones sin cambios por más de ttl.
func runJanitor(ctx context.Context, uc *container.UseCase, rec *metrics.Recorder, ttl, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.PurgeExpired(ctx, ttl)
			if err != nil {
				log.Warn().Err(err).Msg("limpieza de sesiones")
				continue
			}
			rec.SessionsExpired(n)
		}
	}
}
