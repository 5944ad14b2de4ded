package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
)

type modelLister interface {
	Models(ctx context.Context) ([]chatapi.Model, error)
}

type repl struct {
	ctrl   *chat.Controller
	models modelLister
	in     io.Reader
	out    io.Writer
	now    func() time.Time
}

const helpText = `Commands:
  /new [model]    start a new conversation
  /list           list conversations
  /select <id>    switch to a conversation
  /delete <id>    delete a conversation
  /model <id>     change the model of the current conversation
  /models         list available models
  /clear          delete every conversation
  /help           show this help
  /quit           exit
Anything else is sent to the current conversation.`

func (r *repl) run(ctx context.Context) error {
	store := r.ctrl.Store()
	if cur, ok := store.Current(); ok {
		r.printf("Resumed %q (%s, %d messages). Type /help for commands.\n", cur.Title, cur.Model, len(cur.Messages))
	} else {
		r.printf("No conversations yet. Type a message to start, or /help.\n")
	}

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		r.printf("> ")
		if !sc.Scan() {
			r.printf("\n")
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *repl) send(ctx context.Context, text string) {
	reply, err := r.ctrl.SendMessage(ctx, text)
	if errors.Is(err, chat.ErrExchangeInFlight) {
		r.printf("Still waiting for the previous reply.\n")
		return
	}
	if reply.Content != "" {
		r.printf("%s\n", reply.Content)
	}
}

// command runs a slash command and reports whether the REPL should stop.
func (r *repl) command(ctx context.Context, line string) bool {
	store := r.ctrl.Store()
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true

	case "/help":
		r.printf("%s\n", helpText)

	case "/new":
		model := r.ctrl.DefaultModel()
		if cur, ok := store.Current(); ok {
			model = cur.Model
		}
		if len(args) > 0 {
			model = args[0]
		}
		id := store.CreateSession(ctx, model)
		r.printf("Started %s with %s.\n", id, model)

	case "/list":
		r.list()

	case "/select":
		if len(args) != 1 {
			r.printf("usage: /select <id>\n")
			break
		}
		sess, ok := store.Session(args[0])
		if !ok {
			r.printf("No conversation %s.\n", args[0])
			break
		}
		store.SelectSession(ctx, sess.ID)
		r.printf("Switched to %q (%s).\n", sess.Title, sess.Model)
		for _, m := range sess.Messages {
			r.printf("[%s] %s\n", m.Role, m.Content)
		}

	case "/delete":
		if len(args) != 1 {
			r.printf("usage: /delete <id>\n")
			break
		}
		if _, ok := store.Session(args[0]); !ok {
			r.printf("No conversation %s.\n", args[0])
			break
		}
		store.DeleteSession(ctx, args[0])
		r.printf("Deleted %s.\n", args[0])

	case "/model":
		if len(args) != 1 {
			r.printf("usage: /model <id>\n")
			break
		}
		id := store.CurrentID()
		if id == "" {
			r.printf("No current conversation.\n")
			break
		}
		store.UpdateSessionModel(ctx, id, args[0])
		r.printf("Now using %s.\n", args[0])

	case "/models":
		models, err := r.models.Models(ctx)
		if err != nil {
			r.printf("Could not load models (%s); showing defaults.\n", chat.ErrorText(err))
		}
		category := ""
		for _, m := range models {
			if m.Category != category {
				category = m.Category
				r.printf("%s\n", category)
			}
			r.printf("  %-24s %s\n", m.ID, m.Description)
		}

	case "/clear":
		store.ClearAll(ctx)
		r.printf("All conversations deleted.\n")

	default:
		r.printf("Unknown command %s. Type /help.\n", name)
	}
	return false
}

func (r *repl) list() {
	snap := r.ctrl.Store().Snapshot()
	if len(snap.Sessions) == 0 {
		r.printf("No conversations.\n")
		return
	}
	for _, g := range chat.GroupByDate(snap.Sessions, r.now()) {
		r.printf("%s\n", g.Label)
		for _, s := range g.Sessions {
			marker := " "
			if s.ID == snap.CurrentID {
				marker = "*"
			}
			r.printf(" %s %s  %s  (%s, %d messages)\n", marker, s.ID, s.Title, s.Model, len(s.Messages))
			if len(s.Messages) > 0 {
				r.printf("     %s\n", s.Preview())
			}
		}
	}
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
