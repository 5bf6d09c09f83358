package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/logging"
)

// sendOptions holds the frame fields given on the command line.
type sendOptions struct {
	Type   uint8
	Target string
	Source string
	Port   int
	Data   []string
}

var (
	sendOpts       sendOptions
	sendSerialPort string
	sendBaud       int
	sendDryRun     bool
)

var sendCmd = &cobra.Command{
	Use:   "send --target ADDR [data...]",
	Short: "Send one frame to the bus",
	Long: `Encode one frame and write it to the serial port.

Addresses and payload bytes are hex. Payload bytes may be given with
--data or as arguments. Switch group 0x122 on:

  asbbridge send --target 122 51 1

The source defaults to the configured bridge id.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().Uint8VarP(&sendOpts.Type, "type", "t", uint8(asb.Multicast), "Message type: 0 broadcast, 1 multicast, 2 unicast")
	sendCmd.Flags().StringVar(&sendOpts.Target, "target", "", "Target address (hex)")
	sendCmd.Flags().StringVar(&sendOpts.Source, "source", "", "Source address (hex, default bridge id)")
	sendCmd.Flags().IntVar(&sendOpts.Port, "port", asb.PortNone, "Unicast port, -1 for none")
	sendCmd.Flags().StringSliceVarP(&sendOpts.Data, "data", "d", nil, "Payload bytes (hex, comma separated)")
	sendCmd.Flags().StringVar(&sendSerialPort, "serial", "", "Serial port (default from config)")
	sendCmd.Flags().IntVarP(&sendBaud, "baud", "b", 0, "Baud rate (default from config)")
	sendCmd.Flags().BoolVarP(&sendDryRun, "dry-run", "n", false, "Print the encoded frame instead of sending it")
	_ = sendCmd.MarkFlagRequired("target") //nolint:errcheck // Flag is defined above

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}

	opts := sendOpts
	opts.Data = append(append([]string(nil), opts.Data...), args...)

	p, err := buildPacket(opts, cfg.Bridge.ID)
	if err != nil {
		return err
	}
	frame := p.Encode()

	if sendDryRun {
		printFrame(cmd.OutOrStdout(), p, frame)
		return nil
	}

	serialCfg := toolSerialConfig(cfg.Serial, sendSerialPort, sendBaud)
	conn := asb.NewSerialConnector(serialCfg, nil)
	conn.SetLogger(logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr()).Component("serial"))
	defer conn.Close()

	if err := conn.Open(); err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	if err := conn.Write(cmd.Context(), frame); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", p, serialCfg.Port)
	return nil
}

// buildPacket parses the command line fields into a valid packet.
func buildPacket(opts sendOptions, defaultSource uint16) (asb.Packet, error) {
	target, err := parseHex(opts.Target, 16)
	if err != nil {
		return asb.Packet{}, fmt.Errorf("target: %w", err)
	}

	source := uint64(defaultSource)
	if opts.Source != "" {
		source, err = parseHex(opts.Source, 16)
		if err != nil {
			return asb.Packet{}, fmt.Errorf("source: %w", err)
		}
	}

	data := make([]byte, 0, len(opts.Data))
	for i, s := range opts.Data {
		v, err := parseHex(s, 8)
		if err != nil {
			return asb.Packet{}, fmt.Errorf("data byte %d: %w", i, err)
		}
		data = append(data, byte(v))
	}

	p := asb.NewPacket(asb.MessageType(opts.Type), uint16(target), uint16(source), opts.Port, data)
	if err := p.Valid(); err != nil {
		return asb.Packet{}, err
	}
	return p, nil
}

func printFrame(w io.Writer, p asb.Packet, frame []byte) {
	fmt.Fprintf(w, "%s\n%q\n", p, frame)
}
