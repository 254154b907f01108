package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

var (
	credUsername string
	credDomain   string

	connectionCmd = &cobra.Command{
		Use:   "connection",
		Short: "Inspect and test connection profiles",
	}

	connectionListCmd = &cobra.Command{
		Use:          "list",
		Short:        "List the configured connection profiles",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(true)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-16s %-8s %s\n", "NAME", "PROTOCOL", "ADDRESS")
			for _, name := range env.factory.Profiles() {
				s, _ := env.factory.Profile(name)
				addr := s.Address()
				if s.Protocol == transfer.ProtocolLocal {
					addr = s.BasePath
				}
				fmt.Fprintf(w, "%-16s %-8s %s\n", name, s.Protocol, addr)
			}
			return nil
		},
	}

	connectionTestCmd = &cobra.Command{
		Use:          "test <profile>",
		Short:        "Open a connection profile and check it answers",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(true)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()

			timeout := time.Duration(env.cfg.Transfer.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := env.factory.Test(ctx, args[0]); err != nil {
				return fmt.Errorf("connection %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection %q OK (%s)\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	connectionSetPasswordCmd = &cobra.Command{
		Use:   "set-password <credential-id>",
		Short: "Store a password in the system keyring",
		Long: `Read a password from standard input and store it in the system keyring
under the given credential id. Profiles refer to it with credential_id.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(true)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()

			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && password == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(password, "\r\n")
			if password == "" {
				return fmt.Errorf("empty password")
			}

			ks := transfer.NewKeyringStore(env.cfg.Security.KeystoreServiceName, env.logger)
			if err := ks.Save(args[0], &transfer.Credentials{
				Username: credUsername,
				Password: password,
				Domain:   credDomain,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credential %q\n", args[0])
			return nil
		},
	}
)

func init() {
	connectionSetPasswordCmd.Flags().StringVar(&credUsername, "username", "", "username stored with the password")
	connectionSetPasswordCmd.Flags().StringVar(&credDomain, "domain", "", "SMB domain stored with the password")
	connectionCmd.AddCommand(connectionListCmd, connectionTestCmd, connectionSetPasswordCmd)
	rootCmd.AddCommand(connectionCmd)
}
