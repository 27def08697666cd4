package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/coinchat/internal/chat"
	"github.com/zulandar/coinchat/internal/exchange"
	"github.com/zulandar/coinchat/internal/session"
)

const chatHelp = `Commands:
  /threads        list threads
  /new            start a new thread
  /switch <n|id>  switch to a thread
  /delete <n|id>  delete a thread
  /clear          clear the active thread
  /balance        show the balance
  /help           show this help
  /quit           leave the chat`

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long:  "Opens the active thread and reads messages from standard input. Lines starting with / are commands; /help lists them.",
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

			r := newRenderer(cmd.OutOrStdout(), a.cfg.AI.Name, a.cfg.Presentation.RevealRate)
			sub := s.Hub().Subscribe(r.Handle)
			defer sub.Close()

			if err := s.Replay(ctx); err != nil {
				return err
			}
			return runChat(ctx, s, r, cmd.InOrStdin())
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// runChat reads lines from in until EOF or /quit.
func runChat(ctx context.Context, s *chat.Session, r *renderer, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, s, r, line)
			if err != nil {
				fmt.Fprintf(r.out, "! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if _, err := s.Submit(ctx, line); err != nil {
			fmt.Fprintf(r.out, "! %s\n", describeSendError(err, s.Bounds()))
		}
	}
	return sc.Err()
}

func chatCommand(ctx context.Context, s *chat.Session, r *renderer, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/threads":
		printThreads(r.out, s.Threads())
	case "/new":
		if _, err := s.NewThread(ctx); err != nil {
			return false, err
		}
	case "/switch":
		id, err := resolveThread(s, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.rule())
		return false, s.Switch(ctx, id)
	case "/delete":
		id, err := resolveThread(s, arg)
		if err != nil {
			return false, err
		}
		if err := s.DeleteThread(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted thread %s\n", id)
	case "/clear":
		fmt.Fprintln(r.out, r.rule())
		return false, s.ClearHistory(ctx, "")
	case "/balance":
		snap, err := s.Balance(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%d %s (%d per message)\n", snap.Balance, snap.Currency, snap.CostPerMessage)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

// resolveThread accepts a thread id or its 1-based position in the thread
// list.
func resolveThread(s *chat.Session, arg string) (string, error) {
	if arg == "" {
		return "", errors.New("thread number or id required")
	}
	threads := s.Threads()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(threads) {
			return "", fmt.Errorf("no thread number %d", n)
		}
		return threads[n-1].ID, nil
	}
	return arg, nil
}

func printThreads(w io.Writer, threads []session.ThreadSummary) {
	for i, t := range threads {
		marker := " "
		if t.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %d  %s  %s  %d messages\n", marker, i+1, t.ID, t.CreatedAt.Local().Format("2006-01-02 15:04"), t.MessageCount)
	}
}

// describeSendError turns the errors Send returns into a user-facing line.
func describeSendError(err error, b session.Bounds) string {
	switch {
	case errors.Is(err, session.ErrInvalidContent):
		return fmt.Sprintf("messages must be %d to %d characters", b.Min, b.Max)
	case errors.Is(err, exchange.ErrRequestInFlight):
		return "still waiting for the previous reply"
	case errors.Is(err, session.ErrInvalidThread):
		return "that thread no longer exists"
	default:
		return err.Error()
	}
}
