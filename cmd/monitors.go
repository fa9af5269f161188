package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/display"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

// DisplayInfo represents the display information output
type DisplayInfo struct {
	Monitors []MonitorInfo `json:"monitors"`
	Error    string        `json:"error,omitempty"`
}

// MonitorInfo represents information about a single monitor
type MonitorInfo struct {
	ID        string  `json:"id"`
	Connector uint32  `json:"connector"`
	X         int32   `json:"x"`
	Y         int32   `json:"y"`
	Width     int32   `json:"width"`
	Height    int32   `json:"height"`
	Refresh   float64 `json:"refresh"`
	Primary   bool    `json:"primary"`
	Active    bool    `json:"active"`
}

var (
	jsonOutput bool
)

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Show monitor configuration",
	Long: `Display information about connected monitors: the mode each one is
driven with, or its preferred mode when no controller is attached.`,
	Args: cobra.NoArgs,
	RunE: runMonitors,
}

func init() {
	monitorsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(monitorsCmd)
}

func runMonitors(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	disp, err := detectDisplay()
	if err != nil {
		if jsonOutput {
			// Output error as JSON
			return json.NewEncoder(out).Encode(DisplayInfo{Error: err.Error()})
		}
		return fmt.Errorf("failed to detect monitors: %w", err)
	}

	monitors := disp.GetMonitors()

	if jsonOutput {
		// Output JSON format for programmatic usage
		info := DisplayInfo{
			Monitors: make([]MonitorInfo, len(monitors)),
		}
		for i, mon := range monitors {
			info.Monitors[i] = MonitorInfo{
				ID:        mon.ID,
				Connector: uint32(mon.Connector),
				X:         mon.X,
				Y:         mon.Y,
				Width:     mon.Width,
				Height:    mon.Height,
				Refresh:   mon.Refresh,
				Primary:   mon.Primary,
				Active:    mon.Active,
			}
		}
		return json.NewEncoder(out).Encode(info)
	}

	// Human-readable format
	if len(monitors) == 0 {
		fmt.Fprintln(out, "No monitors detected")
		return nil
	}

	fmt.Fprintf(out, "Detected %d monitor(s):\n\n", len(monitors))

	for i, mon := range monitors {
		fmt.Fprintf(out, "Monitor %d:\n", i+1)
		fmt.Fprintf(out, "  Name:       %s\n", mon.ID)
		fmt.Fprintf(out, "  Resolution: %dx%d @ %.2f Hz\n", mon.Width, mon.Height, mon.Refresh)
		fmt.Fprintf(out, "  Position:   (%d, %d)\n", mon.X, mon.Y)

		if dpi := mon.DPI(); dpi > 0 {
			fmt.Fprintf(out, "  DPI:        %.0f\n", dpi)
		}
		if mon.Primary {
			fmt.Fprintf(out, "  Primary:    Yes\n")
		}
		if !mon.Active {
			fmt.Fprintf(out, "  Active:     No (preferred mode)\n")
		}

		if i < len(monitors)-1 {
			fmt.Fprintln(out, ui.CreateSeparator(40, ""))
		}
		fmt.Fprintln(out)
	}

	// Show total virtual screen size
	if len(monitors) > 1 {
		minX, minY, maxX, maxY := monitors[0].Bounds()
		for _, mon := range monitors[1:] {
			x1, y1, x2, y2 := mon.Bounds()
			minX, minY = min(minX, x1), min(minY, y1)
			maxX, maxY = max(maxX, x2), max(maxY, y2)
		}
		fmt.Fprintf(out, "Virtual screen: %dx%d\n", maxX-minX, maxY-minY)
	}

	return nil
}

func detectDisplay() (*display.Display, error) {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return nil, err
	}
	defer closeLogged("session", s)

	return display.New(s.reg)
}
