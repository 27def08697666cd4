package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/coinchat/internal/session"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		threadID   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the messages of a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			msgs, err := s.History(threadID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				who := "You"
				if m.Role == session.RoleAssistant {
					who = a.cfg.AI.Name
				}
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), who, m.Content)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id (default: active thread)")
	return cmd
}

func newClearCmd() *cobra.Command {
	var (
		configPath string
		threadID   string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the messages of a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ClearHistory(cmd.Context(), threadID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id (default: active thread)")
	return cmd
}
