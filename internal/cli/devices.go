package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/murmurvoice/murmur/internal/audio"
	"github.com/murmurvoice/murmur/internal/fault"
)

func newDevicesCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			capturer, err := audio.NewCapturer(audio.Config{Logger: app.log()})
			if err != nil {
				if errors.Is(err, fault.ErrNoMicrophone) {
					fmt.Fprintln(cmd.OutOrStdout(), "no capture devices found")
					return nil
				}
				return err
			}
			defer func() { _ = capturer.Close() }()

			devices, err := capturer.Devices()
			if err != nil {
				return err
			}

			for _, device := range devices {
				marker := " "
				if device.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, device.Name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\n* default device")

			return nil
		},
	}
}
