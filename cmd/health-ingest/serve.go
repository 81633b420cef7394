// ABOUTME: CLI command running the HTTP sync endpoint and optional MQTT subscriber.
// ABOUTME: Both transports share one coordinator and stop together on SIGINT/SIGTERM.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/health-ingest/internal/mqtt"
	"github.com/harperreed/health-ingest/internal/server"
	"github.com/harperreed/health-ingest/internal/spool"
)

var (
	serveAddr       string
	serveMQTTBroker string
	serveMQTTTopic  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive exports over HTTP and MQTT",
	Long: `Run the ingestion endpoints until interrupted.

HTTP:

  POST /api/v1/sync   Ingest a payload (201 stored, 200 duplicate)
  POST /sync          Same, for older automations
  GET  /healthz       Storage reachability
  GET  /metrics       Prometheus metrics

MQTT:

  When a broker is configured, every message on the topic is ingested as
  a payload. Duplicate deliveries are harmless. Messages that arrive while
  storage is failing are kept in the spool and replayed periodically.

EXAMPLES:

  health-ingest serve
  health-ingest serve --addr :9000
  health-ingest serve --mqtt-broker tcp://localhost:1883 --mqtt-topic health/export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}
		if serveMQTTBroker != "" {
			cfg.MQTT.Broker = serveMQTTBroker
		}
		if serveMQTTTopic != "" {
			cfg.MQTT.Topic = serveMQTTTopic
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)

		httpServer := server.New(coordinator, db, log, server.Config{
			Addr:         cfg.HTTP.Addr,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
			Gatherer:     promReg,
		})
		g.Go(func() error { return httpServer.Run(ctx) })

		if cfg.MQTT.Broker != "" {
			sp, err := spool.Open(cfg.GetSpoolDir(), log)
			if err != nil {
				return err
			}
			defer sp.Close()

			sub := mqtt.New(mqtt.Config{
				Broker:   cfg.MQTT.Broker,
				Topic:    cfg.MQTT.Topic,
				ClientID: cfg.MQTT.ClientID,
				QoS:      cfg.MQTT.QoS,
			}, coordinator, log).WithSpool(sp)
			g.Go(func() error { return sub.Run(ctx) })
			g.Go(func() error { return sp.Run(ctx, coordinator, cfg.Spool.Interval) })
		}

		log.Info("serving", "backend", cfg.GetBackend(), "http", cfg.HTTP.Addr, "mqtt", cfg.MQTT.Broker, "version", version)
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveMQTTBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	serveCmd.Flags().StringVar(&serveMQTTTopic, "mqtt-topic", "", "MQTT topic carrying exports")
	rootCmd.AddCommand(serveCmd)
}
