package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authkit/internal/security/token"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "authkit",
		Short:         "Pluggable authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(serveCmd(), keygenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// keygenCmd prints a fresh secret suitable for AUTHKIT_JWT_SECRET.
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random signing secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := token.GenerateOpaqueToken(32)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
