package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/imgedit/internal/keys"
)

func newKeysCmd(app *App) *cobra.Command {
	var providerFlag string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}
	cmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", providerName, "provider the key belongs to")

	store := func() (*keys.Store, error) {
		dir, err := app.ConfigDir()
		if err != nil {
			return nil, err
		}
		return keys.NewStoreAt(dir), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store an API key (reads stdin when no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}

			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprintf(app.Out, "Enter %s API key: ", providerFlag)
				line, err := bufio.NewReader(app.In).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read key: %w", err)
				}
				key = strings.TrimSpace(line)
			}

			if err := s.Set(providerFlag, key); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored %s key %s in %s\n", providerFlag, keys.MaskKey(strings.TrimSpace(key)), s.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the stored key, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			key, err := s.Get(providerFlag)
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("%w: %s", keys.ErrKeyNotFound, providerFlag)
			}
			fmt.Fprintf(app.Out, "%s: %s\n", providerFlag, keys.MaskKey(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete",
		Aliases: []string{"rm"},
		Short:   "Remove the stored key",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			if err := s.Delete(providerFlag); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s key\n", providerFlag)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List providers with stored keys",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			providers, err := s.List()
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				fmt.Fprintln(app.Out, "No keys stored")
				return nil
			}
			for _, p := range providers {
				key, _ := s.Get(p)
				fmt.Fprintf(app.Out, "%-10s %s\n", p, keys.MaskKey(key))
			}
			return nil
		},
	})

	return cmd
}
