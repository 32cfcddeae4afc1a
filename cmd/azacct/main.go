// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// azacct is the command line front end for the account manager: it signs
// users in and out of Azure clouds and manages the subscription filter.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/azure/azure-account/pkg/account"
	"github.com/azure/azure-account/pkg/auth"
	"github.com/azure/azure-account/pkg/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "azacct",
		Short:         "Sign in to Azure and manage the subscription filter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newLoginToCloudCmd(),
		newSelectSubscriptionsCmd(),
		newStatusCmd(),
	)

	return root
}

func newManager() (*account.Manager, error) {
	return account.NewManager(&account.ManagerOptions{WatchConfig: true})
}

func newLoginCmd() *cobra.Command {
	var useDeviceCode bool
	var tenant string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the selected Azure cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("tenant") {
				if err := persistTenant(tenant); err != nil {
					return err
				}
			}

			manager, err := newManager()
			if err != nil {
				return err
			}
			defer manager.Close()

			trigger := account.TriggerLogin
			if useDeviceCode {
				trigger = account.TriggerLoginWithDeviceCode
			}

			if err := manager.Login(cmd.Context(), trigger); err != nil {
				return err
			}

			printSessions(manager)
			return nil
		},
	}

	cmd.Flags().BoolVar(
		&useDeviceCode, "use-device-code", false,
		"Sign in with a device code instead of the browser redirect flow")
	cmd.Flags().StringVar(
		&tenant, "tenant", "",
		"Tenant to sign in to (default: all tenants of the account)")

	return cmd
}

// persistTenant writes the tenant selection so this and subsequent logins
// are scoped to it. An empty value restores the all-tenants default.
func persistTenant(tenant string) error {
	filePath, err := config.GetUserConfigFilePath()
	if err != nil {
		return err
	}

	manager := config.NewFileConfigManager(config.NewManager())
	cfg, err := config.LoadOrCreate(manager, filePath)
	if err != nil {
		return err
	}

	if tenant == "" {
		if err := cfg.Unset(account.TenantConfigPath); err != nil {
			return err
		}
	} else if err := cfg.Set(account.TenantConfigPath, tenant); err != nil {
		return err
	}

	return manager.Save(cfg, filePath)
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			defer manager.Close()

			if err := manager.Logout(cmd.Context()); err != nil {
				return err
			}

			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newLoginToCloudCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login-to-cloud",
		Short: "Pick an Azure cloud instance and sign in to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			defer manager.Close()

			if err := manager.LoginToCloud(cmd.Context()); err != nil {
				return err
			}

			printSessions(manager)
			return nil
		},
	}
}

func newSelectSubscriptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select-subscriptions",
		Short: "Choose which subscriptions the filter includes",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			defer manager.Close()

			// Restore sessions silently first so the picker has data.
			err = manager.Initialize(cmd.Context(), account.TriggerActivation, false, true)
			if err != nil && !errors.Is(err, auth.ErrNotSignedIn) {
				return err
			}

			return manager.SelectSubscriptions(cmd.Context())
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current sign-in status and filtered subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			defer manager.Close()

			err = manager.Initialize(cmd.Context(), account.TriggerActivation, false, true)
			if err != nil && !errors.Is(err, auth.ErrNotSignedIn) {
				return err
			}

			fmt.Printf("Status: %s\n", manager.Status())
			printSessions(manager)

			filters := manager.Filters()
			if len(filters) > 0 {
				fmt.Println("Selected subscriptions:")
				for _, subscription := range filters {
					fmt.Printf("  %s (%s)\n", subscription.DisplayName, subscription.ID)
				}
			}

			return nil
		},
	}
}

func printSessions(manager *account.Manager) {
	sessions := manager.Sessions()
	if len(sessions) == 0 {
		return
	}

	fmt.Printf("Signed in to %s as %s across %d tenant(s).\n",
		sessions[0].Environment.Name, sessions[0].UserID, len(sessions))
}
