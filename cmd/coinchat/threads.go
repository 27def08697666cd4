package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage conversation threads",
	}

	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsNewCmd())
	cmd.AddCommand(newThreadsSwitchCmd())
	cmd.AddCommand(newThreadsDeleteCmd())
	return cmd
}

func newThreadsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads, oldest first",
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

			printThreads(cmd.OutOrStdout(), s.Threads())
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newThreadsNewCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a thread and make it active",
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

			th, err := s.NewThread(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created thread %s\n", th.ID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newThreadsSwitchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "switch <n|id>",
		Short: "Make a thread active",
		Args:  cobra.ExactArgs(1),
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

			id, err := resolveThread(s, args[0])
			if err != nil {
				return err
			}
			if err := s.Switch(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active thread is now %s\n", id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newThreadsDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a thread and its messages",
		Args:  cobra.ExactArgs(1),
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

			id, err := resolveThread(s, args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteThread(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted thread %s\n", id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
