/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/codegenie/apiserver/internal/server"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var adminFlags struct {
	userID   string
	username string
	email    string
	password string
}

// adminCmd manages administrator accounts from the command line.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user with a password and promote it to admin",
	Long: `Registers (or refreshes) a user, sets its password and grants the admin
role. The password is read from --password or ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminFlags.password
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if strings.TrimSpace(password) == "" {
			return errors.New("a password is required (--password or ADMIN_PASSWORD)")
		}

		users, closeFn, err := openUserService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		_, created, err := users.RegisterWithPassword(cmd.Context(), services.RegisterInput{
			UserID:   adminFlags.userID,
			Username: adminFlags.username,
			Email:    adminFlags.email,
		}, password)
		if err != nil {
			return fmt.Errorf("register %s: %w", adminFlags.userID, err)
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", adminFlags.userID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "user %s updated\n", adminFlags.userID)
		}

		if _, err := users.PromoteToAdmin(cmd.Context(), adminFlags.userID); err != nil {
			return fmt.Errorf("promote %s: %w", adminFlags.userID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s promoted to admin\n", adminFlags.userID)
		return nil
	},
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote <user_id>",
	Short: "Grant the admin role to an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, closeFn, err := openUserService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := users.PromoteToAdmin(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s promoted to admin\n", args[0])
		return nil
	},
}

func openUserService(cmd *cobra.Command) (*services.UserService, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := cliLogger(cfg)
	stores, closeStores, err := server.OpenStores(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if _, err := stores.InitAll(cmd.Context()); err != nil {
		_ = closeStores()
		return nil, nil, err
	}
	return services.NewUserService(stores.Users, stores.Activity, stores.History, stores.Feedback, log), closeStores, nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd, adminPromoteCmd)

	adminCreateCmd.Flags().StringVar(&adminFlags.userID, "user-id", "admin_01", "admin user id")
	adminCreateCmd.Flags().StringVar(&adminFlags.username, "username", "Admin", "admin display name")
	adminCreateCmd.Flags().StringVar(&adminFlags.email, "email", "admin@example.com", "admin email")
	adminCreateCmd.Flags().StringVar(&adminFlags.password, "password", "", "admin password")
}
