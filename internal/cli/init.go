package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cgast/examiner/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write an annotated config file at --config. An existing file is never overwritten.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Write(configPath); err != nil {
			return fatal(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
