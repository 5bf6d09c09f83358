package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
)

var decodeMode string

var decodeCmd = &cobra.Command{
	Use:   "decode [line...]",
	Short: "Decode captured frames",
	Long: `Decode frames given as arguments, or read them from stdin one per line.

Control characters may be written as Go escapes, e.g.
  asbbridge decode '\x011\x1f122\x1f1\x1fff\x1f2\x0251\x1f1\x1f\x04'`,
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeMode, "mode", "m", "", "Numeric mode: corrected or legacy (default from config)")

	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	mode, err := numericMode(decodeMode, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		for _, arg := range args {
			decodeLine(out, arg, mode)
		}
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			decodeLine(out, line, mode)
		}
	}
	return scanner.Err()
}

// decodeLine writes the report for one captured line. Lines that are not
// valid escaped strings are decoded as raw bytes.
func decodeLine(w io.Writer, line string, mode asb.NumericMode) {
	raw := unescape(line)

	p, err := asb.DecodeString(raw)
	if err != nil {
		fmt.Fprintf(w, "Decode failed: %v\n\n", err)
		return
	}
	fmt.Fprintf(w, "%s\n\n", p.Report(mode))
}

func unescape(s string) string {
	unquoted, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return unquoted
}
