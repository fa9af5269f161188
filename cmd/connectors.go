package cmd

import (
	"fmt"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List connectors and their state",
	Args:  cobra.NoArgs,
	RunE:  runConnectors,
}

func init() {
	rootCmd.AddCommand(connectorsCmd)
}

func runConnectors(cmd *cobra.Command, args []string) error {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	var rows [][]string
	var connected []bool
	for conn, err := range s.reg.Connectors() {
		if err != nil {
			return err
		}
		preferred := "-"
		if m, ok := drm.PreferredMode(conn.Modes); ok {
			preferred = m.String()
		}
		size := "-"
		if conn.WidthMM != 0 {
			size = fmt.Sprintf("%dx%d mm", conn.WidthMM, conn.HeightMM)
		}
		rows = append(rows, []string{
			fmt.Sprint(conn.ID()),
			conn.Name(),
			ui.FormatStatus(conn.Connected(), conn.State.String()),
			size,
			orDash(conn.Encoder),
			fmt.Sprint(len(conn.Modes)),
			preferred,
		})
		connected = append(connected, conn.Connected())
		closeLogged("connector", conn)
	}

	return printTable(cmd, "CONNECTORS", s.path,
		[]string{"ID", "NAME", "STATE", "SIZE", "ENCODER", "MODES", "PREFERRED"}, rows,
		func(row int) bool { return connected[row] })
}
