package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show the card's mode-setting resources",
	Long:  `List the ids of every connector, encoder, controller, plane and framebuffer together with the card's size limits.`,
	Args:  cobra.NoArgs,
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	res, err := drm.GetResources(s.dev)
	if err != nil {
		return fmt.Errorf("failed to read resources: %w", err)
	}
	planes, err := drm.GetPlaneIDs(s.dev)
	if err != nil {
		return fmt.Errorf("failed to read planes: %w", err)
	}

	var out strings.Builder
	out.WriteString(ui.FormatAppHeader("RESOURCES", s.path))
	out.WriteString("\n\n")
	out.WriteString(ui.FormatKeyValue("Width", fmt.Sprintf("%d - %d", res.MinWidth, res.MaxWidth)))
	out.WriteString("\n")
	out.WriteString(ui.FormatKeyValue("Height", fmt.Sprintf("%d - %d", res.MinHeight, res.MaxHeight)))
	out.WriteString("\n\n")

	groups := []struct {
		kind drm.ObjectKind
		ids  []drm.ResourceID
	}{
		{drm.ObjectConnector, res.Connectors},
		{drm.ObjectEncoder, res.Encoders},
		{drm.ObjectController, res.Controllers},
		{drm.ObjectPlane, planes},
		{drm.ObjectFramebuffer, res.Framebuffers},
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{g.kind.String(), fmt.Sprint(len(g.ids)), joinIDs(g.ids)})
	}
	out.WriteString(ui.Table([]string{"KIND", "COUNT", "IDS"}, rows, nil))
	out.WriteString("\n")

	_, err = fmt.Fprint(cmd.OutOrStdout(), out.String())
	return err
}

func joinIDs(ids []drm.ResourceID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

// orDash prints 0 ids as "-"
func orDash(id drm.ResourceID) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}
