package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/spf13/cobra"
)

func secretsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the local secrets file",
	}
	cmd.AddCommand(
		secretsListCmd(opts),
		secretsGetCmd(opts),
		secretsSetCmd(opts),
		secretsClearCmd(opts),
		secretsInitCmd(opts),
	)
	return cmd
}

func secretsListCmd(opts *options) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(opts.secretsPath)
			if err != nil {
				return err
			}
			entries, err := store.Entries()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVALUE")
			fmt.Fprintln(w, "----\t-----")
			for _, e := range entries {
				value := e.Value
				switch {
				case value == "":
					value = secrets.Unset
				case !reveal && strings.HasSuffix(e.Name, "PASSWORD"):
					value = strings.Repeat("*", 8)
				}
				fmt.Fprintf(w, "%s\t%s\n", e.Name, value)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show passwords")
	return cmd
}

func secretsGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print one secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(opts.secretsPath)
			if err != nil {
				return err
			}
			value, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("%s is unset", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func secretsSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(opts.secretsPath)
			if err != nil {
				return err
			}
			if _, err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	}
}

func secretsClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear NAME...",
		Short: "Unset secrets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(opts.secretsPath)
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, err := store.Set(name, ""); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cleared\n", name)
			}
			return nil
		},
	}
}

func secretsInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the secrets file with every key unset",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.Open(opts.secretsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "secrets file ready at %s\n", store.Path())
			return nil
		},
	}
}
