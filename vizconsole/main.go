package main

// IMPORT REQUIRED PACKAGES.

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edwinhayes/rosviz/config"
	"github.com/edwinhayes/rosviz/msgs"
	"github.com/edwinhayes/rosviz/viz"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// DEFINE PRIVATE STATIC FUNCTIONS.

// logUpdates returns a redraw hook that logs the display state of a view.
func logUpdates(logger *logrus.Entry) func(v *viz.ViewState, typeName string) {
	return func(v *viz.ViewState, typeName string) {
		topic, _ := v.Topic(typeName)
		entry := logger.WithFields(logrus.Fields{"view": v.ID(), "topic": topic})
		rec, ok := v.Latest(typeName)
		if !ok {
			entry.Info("No data")
			return
		}
		entry.WithFields(msgs.Summarize(rec.Message)).Info("Record")
	}
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	g.Go(func() error {
		logger.Infof("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func run() error {
	cfg, err := config.FromArgs("vizconsole", os.Args[1:])
	if err != nil {
		return err
	}

	// Configure logging.
	base := viz.DefaultLogger()
	base.SetLevel(cfg.Level())
	logger := logrus.NewEntry(base).WithField("client_id", cfg.ClientID)

	reg := prometheus.NewRegistry()
	console := viz.NewConsole(cfg.ConsoleOptions(logger, viz.NewMetrics(reg)))
	for _, vc := range cfg.Views {
		v := console.AddView()
		v.OnUpdate(logUpdates(logger))
		if err := console.Subscribe(v.ID(), vc.TypeName, vc.Topic); err != nil {
			return errors.Wrapf(err, "view %s=%s", vc.TypeName, vc.Topic)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	console.Start()
	logger.Infof("Spinning, directory %s", cfg.DirectoryURL)
	g.Go(func() error {
		console.Spin(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		console.Shutdown()
		return nil
	})
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, g, cfg.MetricsAddr, reg, logger)
	}
	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ALL DONE.
