package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/coinchat/internal/feed"
	"github.com/zulandar/coinchat/internal/session"
	"golang.org/x/term"
)

// renderer prints feed events as plain text lines. When animate is set,
// assistant messages are typed out at the reveal rate.
type renderer struct {
	out     io.Writer
	aiName  string
	rate    float64
	animate bool
	width   int
	sleep   func(time.Duration)

	mu sync.Mutex
}

func newRenderer(out io.Writer, aiName string, rate float64) *renderer {
	r := &renderer{out: out, aiName: aiName, rate: rate, sleep: time.Sleep}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.animate = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			r.width = w
		}
	}
	return r
}

func (r *renderer) label(role session.Role) string {
	if role == session.RoleAssistant {
		return r.aiName
	}
	return "You"
}

// Handle implements feed.Handler.
func (r *renderer) Handle(e feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case feed.KindMessage:
		m := e.Message
		if m == nil {
			return
		}
		// The terminal already shows what the user typed.
		if m.Role == session.RoleUser && !e.Replay {
			return
		}
		prefix := r.label(m.Role) + ": "
		if r.animate && !e.Replay && m.Role == session.RoleAssistant {
			r.typeOut(prefix, m.Content)
			return
		}
		fmt.Fprintf(r.out, "%s%s\n", prefix, m.Content)
	case feed.KindLoading:
		if e.Loading {
			fmt.Fprintf(r.out, "%s is typing...\n", r.aiName)
		}
	case feed.KindBalance:
		fmt.Fprintf(r.out, "[balance: %d %s]\n", e.Balance, e.Currency)
	case feed.KindPurchasePrompt:
		fmt.Fprintf(r.out, "%s\n", e.Text)
	case feed.KindError:
		fmt.Fprintf(r.out, "! %s\n", e.Text)
	case feed.KindPersistenceWarning:
		fmt.Fprintf(r.out, "! warning: %s\n", e.Text)
	}
}

// typeOut writes content rune by rune following the reveal schedule.
func (r *renderer) typeOut(prefix, content string) {
	fmt.Fprint(r.out, prefix)
	start := time.Now()
	shown := 0
	for f := range feed.Reveal(content, r.rate) {
		if d := f.Offset - time.Since(start); d > 0 {
			r.sleep(d)
		}
		fmt.Fprint(r.out, f.Text[shown:])
		shown = len(f.Text)
	}
	fmt.Fprintln(r.out)
}

// rule returns a separator line sized to the terminal.
func (r *renderer) rule() string {
	w := r.width
	switch {
	case w <= 0:
		w = 40
	case w > 80:
		w = 80
	}
	return strings.Repeat("-", w)
}
