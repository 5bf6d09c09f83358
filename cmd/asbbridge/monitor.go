package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/logging"
)

var (
	monitorPort string
	monitorBaud int
	monitorMode string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print every frame seen on the bus",
	Long: `Open the serial port and print a report for every frame until
interrupted. The MQTT broker is not contacted.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorPort, "port", "p", "", "Serial port (default from config)")
	monitorCmd.Flags().IntVarP(&monitorBaud, "baud", "b", 0, "Baud rate (default from config)")
	monitorCmd.Flags().StringVarP(&monitorMode, "mode", "m", "", "Numeric mode: corrected or legacy (default from config)")

	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	mode, err := numericMode(monitorMode, cfg)
	if err != nil {
		return err
	}

	serialCfg := toolSerialConfig(cfg.Serial, monitorPort, monitorBaud)
	log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())

	conn := asb.NewSerialConnector(serialCfg, nil)
	conn.SetLogger(log.Component("serial"))
	defer conn.Close()

	log.Info("monitoring bus", "port", serialCfg.Port, "baud", serialCfg.BaudRate, "numeric_mode", mode.String())

	return conn.Run(cmd.Context(), monitorPrinter(cmd.OutOrStdout(), mode))
}

// monitorPrinter returns a line handler that prints one report per line.
func monitorPrinter(w io.Writer, mode asb.NumericMode) func(line []byte) {
	return func(line []byte) {
		p, err := asb.Decode(line)
		if err != nil {
			fmt.Fprintf(w, "Decode failed: %q\n\n", line)
			return
		}
		fmt.Fprintf(w, "%s\n\n", p.Report(mode))
	}
}

// toolSerialConfig applies command line overrides to the serial settings.
// The tools never reconnect.
func toolSerialConfig(cfg config.SerialConfig, port string, baud int) asb.SerialConfig {
	sc := asb.SerialConfigFrom(cfg)
	if port != "" {
		sc.Port = port
	}
	if baud > 0 {
		sc.BaudRate = baud
	}
	sc.ReconnectInterval = 0
	return sc
}
