// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/vitovidale/clip-processor-service/infrastructure"
	"github.com/vitovidale/clip-processor-service/logging"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and by default the pipeline worker)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveWithWorker {
			a.recoverInterrupted(ctx)
			go func() {
				if err := a.consumer().Run(ctx); err != nil {
					logger.WithError(err).Error("pipeline consumer stopped")
					stop()
				}
			}()
		}

		gin.SetMode(gin.ReleaseMode)
		router := infrastructure.NewRouter(infrastructure.RouterConfig{
			Handlers: &infrastructure.VideoHandlers{
				SubmitVideoUC: a.submit,
				TriggerUC:     a.trigger,
				Pipeline:      a.pipeline,
				ResetVideoUC:  a.reset,
				DeleteVideoUC: a.delete,
				Queries:       a.queries,
				Subtitles:     a.subtitles,
				Logger:        logging.WithComponent(logger, "http"),
			},
			JWTSecret: cfg.JWTSecret,
			Metrics:   a.metrics,
			Checks: map[string]infrastructure.HealthCheck{
				"database": infrastructure.PostgresHealthCheck(a.db),
				"rabbitmq": infrastructure.RabbitMQHealthCheck(a.broker),
			},
			Logger: logging.WithComponent(logger, "http"),
		})

		srv := &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.WithField("port", cfg.Port).Info("Clip Processor Service listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", true, "also consume pipeline requests in this process")
}
