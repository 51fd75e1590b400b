package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thysk/rucio/server"
)

var serveManifest string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rucio.cfg files over HTTP",
	Long: `Serve reads a YAML manifest describing one or more configuration
repositories (file, web, git, s3, gcs), keeps them refreshed in the
background and serves the raw rucio.cfg bytes over HTTP, one route per
repository, alongside health endpoints and optional Prometheus metrics.`,
	Args: exactArgs(0),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveManifest, "manifest", "m", "", "path to the repository manifest")
	_ = serveCmd.MarkFlagRequired("manifest")
}

func runServe(cmd *cobra.Command, args []string) error {
	manifest, err := server.LoadManifest(serveManifest)
	if err != nil {
		return err
	}
	repositories, err := manifest.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(ctx, repositories, manifest.Interval())
	srv.AuthKey = manifest.AuthKey
	srv.EnableMetrics = manifest.Metrics

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			logrus.WithError(err).Error("error shutting down server")
		}
	}()

	logrus.WithField("addr", manifest.Listen).Info("serving configuration repositories")
	return srv.Start(manifest.Listen)
}
