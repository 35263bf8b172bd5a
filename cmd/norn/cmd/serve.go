/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/norndb/norn/pkg/engine/memengine"
	"github.com/norndb/norn/pkg/schema"
	"github.com/norndb/norn/pkg/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wire-protocol server",
	Long: `Start the NornDB wire-protocol server together with its HTTP admin
endpoint.

The wire server speaks the framed binary protocol used by NornDB client
drivers; the admin endpoint exposes Prometheus metrics, a health probe and
node statistics.

Examples:
  norn serve
  norn serve --config /etc/norn/norn.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		registry := prometheus.NewRegistry()
		metrics := server.NewMetrics(registry)

		nodes := make([]schema.Node, 0, len(cfg.Cluster.Peers)+1)
		nodes = append(nodes, schema.Node{ID: 1, Address: cfg.AdvertiseAddr()})
		for _, peer := range cfg.Cluster.Peers {
			nodes = append(nodes, schema.Node{ID: peer.ID, Address: peer.Address})
		}

		driver := memengine.NewDriver()
		defer driver.Close()

		srv := server.New(driver, server.Config{
			Address:          cfg.AdvertiseAddr(),
			HeartbeatTimeout: cfg.Heartbeat.Timeout,
			Nodes:            nodes,
		}, logger, metrics)

		go func() {
			admin := server.AdminRouter(srv, registry)
			logger.WithField("address", cfg.AdminAddr()).Info("admin endpoint listening")
			if err := http.ListenAndServe(cfg.AdminAddr(), admin); err != nil {
				logger.WithError(err).Error("admin endpoint failed")
			}
		}()

		if err := srv.ListenAndServe(cfg.WireAddr()); err != nil {
			return fmt.Errorf("wire server failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
