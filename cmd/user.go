/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stemreport/apiserver/config"
	"github.com/stemreport/apiserver/internal/db"
	"github.com/stemreport/apiserver/internal/logging"
	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/internal/store"
)

var newUser services.NewUser

// userCmd represents the user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage portal accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account, typically the first Admin",
	Long: `Creates an account directly in the database. The account must change its
password on first login. Usage:

	stemreport user create --email admin@moe.gov.my --name Admin --role Admin --password changeme123
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg)

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		users := services.NewUserService(store.NewUserRepository(dbConn), logger)
		user, err := users.Register(cmd.Context(), newUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&newUser.Email, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&newUser.Name, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&newUser.Role, "role", "Admin", "role: Admin, Negeri, Bahagian, PPD or User")
	userCreateCmd.Flags().StringVar(&newUser.StateName, "state", "", "assigned Negeri")
	userCreateCmd.Flags().StringVar(&newUser.PPD, "ppd", "", "assigned PPD district")
	userCreateCmd.Flags().StringVar(&newUser.Password, "password", "", "temporary password")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("password")
}
