package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

type options struct {
	secretsPath string
	deviceURL   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "wlanboot",
		Short:         "wlanboot - wireless bootstrap for headless devices",
		Long:          "Inspect and edit device credentials, and drive the provisioning form of a device in access point mode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.secretsPath, "secrets", "/var/lib/wlanboot/secrets.env", "Secrets file path")
	rootCmd.PersistentFlags().StringVarP(&opts.deviceURL, "device", "d", "http://192.168.4.1", "Provisioning server URL of the device")

	rootCmd.AddCommand(
		secretsCmd(opts),
		provisionCmd(opts),
		resetCmd(opts),
		systemCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wlanboot version %s\n", Version)
		},
	}
}
