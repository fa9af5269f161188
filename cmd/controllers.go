package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "List encoders and the controllers they accept",
	Args:  cobra.NoArgs,
	RunE:  runEncoders,
}

var controllersCmd = &cobra.Command{
	Use:     "controllers",
	Aliases: []string{"crtcs"},
	Short:   "List controllers (CRTCs) and the mode they drive",
	Args:    cobra.NoArgs,
	RunE:    runControllers,
}

var planesCmd = &cobra.Command{
	Use:   "planes",
	Short: "List planes and their formats",
	Long: `List planes and their formats. Primary and cursor planes are only
reported when universal planes are enabled in the config.`,
	Args: cobra.NoArgs,
	RunE: runPlanes,
}

func init() {
	rootCmd.AddCommand(encodersCmd)
	rootCmd.AddCommand(controllersCmd)
	rootCmd.AddCommand(planesCmd)
}

func runEncoders(cmd *cobra.Command, args []string) error {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	var rows [][]string
	for enc, err := range s.reg.Encoders() {
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			fmt.Sprint(enc.ID()),
			enc.Type.String(),
			orDash(enc.Controller),
			fmt.Sprintf("%#b", enc.PossibleControllers),
			fmt.Sprintf("%#b", enc.PossibleClones),
		})
		closeLogged("encoder", enc)
	}
	return printTable(cmd, "ENCODERS", s.path, []string{"ID", "TYPE", "CONTROLLER", "POSSIBLE", "CLONES"}, rows, nil)
}

func runControllers(cmd *cobra.Command, args []string) error {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	var rows [][]string
	var active []bool
	for ctrl, err := range s.reg.Controllers() {
		if err != nil {
			return err
		}
		mode := "-"
		if ctrl.Mode != nil {
			mode = ctrl.Mode.String()
		}
		rows = append(rows, []string{
			fmt.Sprint(ctrl.ID()),
			fmt.Sprint(ctrl.Index),
			mode,
			fmt.Sprintf("%d,%d", ctrl.X, ctrl.Y),
			orDash(ctrl.Framebuffer),
			fmt.Sprint(ctrl.GammaLength),
		})
		active = append(active, ctrl.Active())
		closeLogged("controller", ctrl)
	}
	return printTable(cmd, "CONTROLLERS", s.path,
		[]string{"ID", "INDEX", "MODE", "POSITION", "FB", "GAMMA"}, rows,
		func(row int) bool { return active[row] })
}

func runPlanes(cmd *cobra.Command, args []string) error {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	var rows [][]string
	for plane, err := range s.reg.Planes() {
		if err != nil {
			return err
		}
		formats := make([]string, len(plane.Formats))
		for i, f := range plane.Formats {
			formats[i] = f.String()
		}
		rows = append(rows, []string{
			fmt.Sprint(plane.ID()),
			orDash(plane.Controller),
			orDash(plane.Framebuffer),
			fmt.Sprintf("%#b", plane.PossibleControllers),
			strings.Join(formats, " "),
		})
		closeLogged("plane", plane)
	}
	return printTable(cmd, "PLANES", s.path, []string{"ID", "CONTROLLER", "FB", "POSSIBLE", "FORMATS"}, rows, nil)
}

func printTable(cmd *cobra.Command, title, path string, headers []string, rows [][]string, highlight func(int) bool) error {
	var out strings.Builder
	out.WriteString(ui.FormatAppHeader(title, path))
	out.WriteString("\n\n")
	if len(rows) == 0 {
		out.WriteString(ui.SubtleStyle.Render("Nothing to show"))
	} else {
		out.WriteString(ui.Table(headers, rows, highlight))
	}
	out.WriteString("\n")

	_, err := fmt.Fprint(cmd.OutOrStdout(), out.String())
	return err
}
