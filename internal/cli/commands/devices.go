package commands

import (
	"github.com/spf13/cobra"
)

// NewDevicesCommand creates the devices command.
func NewDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Get supported devices",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "android",
		Short: "Print supported Android devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDevices(cmd, "android")
		},
	})
	return cmd
}

func runDevices(cmd *cobra.Command, platform string) error {
	cc := NewCommandContext(cmd)
	client, err := cc.NewClient()
	if err != nil {
		return err
	}
	devices, err := client.Devices(cmd.Context(), platform)
	if err != nil {
		return err
	}
	return cc.Renderer.Devices(devices)
}
