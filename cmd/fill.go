package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/modeset"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

var (
	fillConnector string
	fillColor     string
	fillDuration  time.Duration
	fillTestOnly  bool
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Show a solid colour on a connector",
	Long: `Show a solid colour full-screen on a connector using a dumb buffer and an
atomic commit, then restore the previous configuration.

Requires DRM master, so no compositor may be running on the device.
With --test-only the kernel only validates the commit.`,
	Args: cobra.NoArgs,
	RunE: runFill,
}

func init() {
	fillCmd.Flags().StringVarP(&fillConnector, "connector", "c", "", "Connector name, e.g. HDMI-A-1 (default: first connected)")
	fillCmd.Flags().StringVar(&fillColor, "color", "0x3050a0", "XRGB8888 colour in hex")
	fillCmd.Flags().DurationVar(&fillDuration, "duration", 5*time.Second, "How long to show the colour")
	fillCmd.Flags().BoolVar(&fillTestOnly, "test-only", false, "Validate the commit without changing the display")
	rootCmd.AddCommand(fillCmd)
}

func parseColor(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return uint32(v), nil
}

func runFill(cmd *cobra.Command, args []string) error {
	color, err := parseColor(fillColor)
	if err != nil {
		return err
	}

	cfg := config.Get().Device
	if !cfg.Atomic {
		return errors.New("fill needs the atomic API; set device.atomic = true")
	}

	s, err := openSession(cfg, true)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	p, err := modeset.Select(s.reg, fillConnector)
	if err != nil {
		return err
	}
	defer closeLogged("pipeline", p)

	frame, err := modeset.Fill(s.dev, p, color, fillTestOnly)
	if err != nil {
		return fmt.Errorf("failed to show frame on %s: %w", p.Connector.Name(), err)
	}
	defer func() {
		if err := frame.Close(); err != nil {
			logger.Errorf("Failed to restore %s: %v", p.Connector.Name(), err)
		}
	}()

	out := cmd.OutOrStdout()
	if fillTestOnly {
		fmt.Fprintln(out, ui.SuccessStyle.Render(fmt.Sprintf("Commit for %s %s accepted", p.Connector.Name(), p.Mode)))
		return nil
	}

	fmt.Fprintf(out, "Showing #%06x on %s (%s) for %s\n", color, p.Connector.Name(), p.Mode, fillDuration)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, restoring display...")
	case <-time.After(fillDuration):
	}
	return nil
}
