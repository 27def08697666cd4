package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/coinchat/internal/exchange"
)

func newSendCmd() *cobra.Command {
	var (
		configPath string
		threadID   string
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			text := strings.Join(args, " ")
			var res exchange.Result
			if threadID == "" {
				res, err = s.Submit(ctx, text)
			} else {
				res, err = s.SendTo(ctx, threadID, text)
			}
			if err != nil {
				return fmt.Errorf("send: %s", describeSendError(err, s.Bounds()))
			}
			return printResult(cmd, a.cfg.AI.Name, res)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id (default: active thread)")
	return cmd
}

func printResult(cmd *cobra.Command, aiName string, res exchange.Result) error {
	out := cmd.OutOrStdout()
	if res.PersistErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", res.PersistErr)
	}
	switch res.Outcome {
	case exchange.OutcomeDelivered:
		fmt.Fprintf(out, "%s: %s\n", aiName, res.AssistantMessage.Content)
		if res.BillingErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", res.BillingErr)
		}
		return nil
	case exchange.OutcomeRejected:
		if res.Prompt != "" {
			fmt.Fprintln(out, res.Prompt)
		}
		return fmt.Errorf("send: %w", res.Err)
	default:
		fmt.Fprintln(out, exchange.RetryMessage)
		return fmt.Errorf("send: %w", res.Err)
	}
}
