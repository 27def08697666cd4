package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "coinchat.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coinchat",
		Short: "Coinchat: pay-per-message AI chat",
		Long:  "Coinchat keeps threaded conversations with an AI assistant and charges a virtual currency per answered message.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newThreadsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newWalletCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coinchat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// addConfigFlag registers the shared --config/-c flag.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to Coinchat config file")
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
