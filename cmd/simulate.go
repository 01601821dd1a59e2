package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridepool/dispatch/core/dispatch"
	"github.com/ridepool/dispatch/core/model"
	"github.com/ridepool/dispatch/simulator"
)

var simCfg = simulator.Config{
	Center: model.Location{Lat: 48.8566, Lon: 2.3522},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the dispatch loop against a synthetic fleet and demand",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simCfg.Vehicles, "vehicles", 20, "fleet size")
	simulateCmd.Flags().IntVar(&simCfg.Capacity, "capacity", 4, "seats per vehicle")
	simulateCmd.Flags().Float64Var(&simCfg.SpeedKph, "speed", 30, "cruise speed in km/h")
	simulateCmd.Flags().Float64Var(&simCfg.RadiusKm, "radius", 8, "service area radius in km")
	simulateCmd.Flags().Float64Var(&simCfg.RequestsPerMin, "rate", 2, "requests per simulated minute")
	simulateCmd.Flags().DurationVar(&simCfg.Duration, "duration", 2*time.Hour, "simulated time span")
	simulateCmd.Flags().Uint64Var(&simCfg.Seed, "seed", 1, "demand generator seed")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCfg.Dispatch = dispatch.Config{}
	simCfg.Dispatch.SetDefaults()
	_, err := simulator.Run(ctx, simCfg)
	return err
}
