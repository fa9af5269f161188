package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/config"
	"github.com/spf13/cobra"
)

var propertiesCmd = &cobra.Command{
	Use:   "properties <kind> <id>",
	Short: "Show the properties of a mode object",
	Long: `Show the decoded properties of a mode object. Kind is one of
connector, encoder, controller (crtc), plane or framebuffer (fb).
Atomic-only properties appear when the atomic cap is enabled in the config.`,
	Args: cobra.ExactArgs(2),
	RunE: runProperties,
}

func init() {
	rootCmd.AddCommand(propertiesCmd)
}

func runProperties(cmd *cobra.Command, args []string) error {
	kind, err := drm.ParseObjectKind(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid object id %q: %w", args[1], err)
	}

	s, err := openSession(config.Get().Device, false)
	if err != nil {
		return err
	}
	defer closeLogged("session", s)

	props, err := drm.Properties(s.dev, kind, drm.ResourceID(id))
	if err != nil {
		return fmt.Errorf("failed to read properties of %s %d: %w", kind, id, err)
	}

	rows := make([][]string, 0, len(props))
	for _, p := range props {
		rows = append(rows, []string{fmt.Sprint(p.ID), p.Name, propertyType(p.Value), p.Value.String(), propertyFlags(p)})
	}
	return printTable(cmd, "PROPERTIES", fmt.Sprintf("%s %d", kind, id),
		[]string{"ID", "NAME", "TYPE", "VALUE", "FLAGS"}, rows, nil)
}

func propertyType(v drm.PropertyValue) string {
	switch v := v.(type) {
	case *drm.EnumValue:
		if v.Bitmask {
			return "bitmask"
		}
		return "enum"
	case *drm.URangeValue:
		return "range"
	case *drm.IRangeValue:
		return "signed range"
	case *drm.ObjectValue:
		return "object"
	case *drm.BlobValue:
		return "blob"
	default:
		return "unknown"
	}
}

func propertyFlags(p drm.Property) string {
	var flags []string
	if !p.Mutable {
		flags = append(flags, "immutable")
	}
	if p.AtomicOnly {
		flags = append(flags, "atomic")
	}
	return strings.Join(flags, ",")
}
