package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func provisionCmd(opts *options) *cobra.Command {
	var ssid, password string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Submit network credentials to a device in access point mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			form := url.Values{"input-ssid": {ssid}, "input-password": {password}}
			resp, err := httpClient.PostForm(endpoint(opts, "/connection"), form)
			if err != nil {
				return fmt.Errorf("failed to connect to device: %w", err)
			}
			defer resp.Body.Close()

			var reply struct {
				Request bool   `json:"request"`
				Valid   bool   `json:"valid"`
				Error   string `json:"error"`
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			_ = json.Unmarshal(body, &reply)

			switch {
			case resp.StatusCode == http.StatusResetContent && reply.Valid:
				fmt.Fprintf(cmd.OutOrStdout(), "Credentials for %q stored. Run 'wlanboot reset' to leave provisioning.\n", ssid)
				return nil
			case resp.StatusCode == http.StatusBadRequest:
				return fmt.Errorf("device rejected SSID %q", ssid)
			case reply.Error != "":
				return fmt.Errorf("device returned status %d: %s", resp.StatusCode, reply.Error)
			default:
				return fmt.Errorf("device returned status %d", resp.StatusCode)
			}
		},
	}
	cmd.Flags().StringVar(&ssid, "ssid", "", "Network name")
	cmd.Flags().StringVar(&password, "password", "", "Network password (empty for open networks)")
	_ = cmd.MarkFlagRequired("ssid")
	return cmd
}

func resetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "End provisioning so the device retries with the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := get(opts, "/reset")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}
}

func systemCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show the device description",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := get(opts, "/system")
			if err != nil {
				return err
			}
			var info map[string]any
			if err := json.Unmarshal(body, &info); err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func endpoint(opts *options, path string) string {
	return strings.TrimRight(opts.deviceURL, "/") + path
}

func get(opts *options, path string) ([]byte, error) {
	resp, err := httpClient.Get(endpoint(opts, path))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
