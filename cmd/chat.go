package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gregriff/parley/internal/app"
	"github.com/gregriff/parley/internal/models"
	"github.com/gregriff/parley/internal/protocol"
	"github.com/gregriff/parley/internal/realtime"
	"github.com/gregriff/parley/internal/room"
)

const chatHelp = `Type a message and press enter to send it.
  /edit <id> <text>   edit one of your messages
  /delete <id>        delete one of your messages
  /image <url>        send an image link
  /file <url>         send a file link
  /who                show who is typing
  /quit               leave the room`

var chatCmd = &cobra.Command{
	Use:   "chat [room-id]",
	Short: "Open a chat room and talk in it",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(chat),
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// printer serializes terminal output from the read goroutine and the prompt loop.
type printer struct {
	mu sync.Mutex
	w  io.Writer
	th theme
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, th: newTheme(w)}
}

func (p *printer) println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) notice(format string, args ...any) {
	p.println("%s", p.th.notice(format, args...))
}

func (p *printer) message(m models.Message) {
	p.println("%s", p.th.message(m))
}

func (p *printer) failure(err error) {
	p.println("%s", p.th.failed.Render("!! "+err.Error()))
}

func chat(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
	s, err := a.RequireSession()
	if err != nil {
		return err
	}
	target, err := a.API.GetRoom(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error fetching room: %w", err)
	}

	out := newPrinter(cmd.OutOrStdout())

	channel := a.NewChannel()
	defer hangUp(channel)
	announce(out, channel)
	if err := channel.Connect(ctx, s.Token); err != nil {
		slog.Warn("realtime unavailable", "error", err)
	}

	var controller *room.Controller
	controller = room.NewController(a.API, channel, a.Store,
		room.WithLogger(slog.Default()),
		room.WithListener(func(u room.Update) {
			printUpdate(out, controller, u)
		}),
	)

	if err := controller.Open(ctx, target); err != nil {
		return fmt.Errorf("error opening room: %w", err)
	}
	defer func() {
		// the command context may already be cancelled by ctrl-c
		if cErr := controller.Close(context.WithoutCancel(ctx)); cErr != nil {
			slog.Warn("leaving room", "error", cErr)
		}
	}()

	out.println("%s", out.th.header.Render(target.Name))
	for _, m := range controller.Messages() {
		out.message(m)
	}
	if controller.Degraded() {
		out.notice("live updates unavailable, showing history only")
	}
	out.println("%s", out.th.faint.Render(chatHelp))

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := handleChatLine(ctx, controller, out, line)
			if err != nil {
				out.failure(err)
			}
			if quit {
				return nil
			}
		}
	}
}

// announce prints connection changes and server errors.
func announce(out *printer, channel *realtime.Channel) {
	channel.On(protocol.DisconnectEvent, func(protocol.Envelope) {
		out.notice("connection lost, messages will be sent over http")
	})
	channel.On(protocol.ConnectEvent, func(protocol.Envelope) {
		out.notice("connected")
	})
	channel.On(protocol.ErrorEvent, func(env protocol.Envelope) {
		if p, err := protocol.Decode[protocol.ErrorPayload](env); err == nil {
			out.notice("server: %s", p.Message)
		}
	})
}

// hangUp disconnects without reporting it as a lost connection.
func hangUp(channel *realtime.Channel) {
	channel.Off(protocol.DisconnectEvent)
	channel.Disconnect()
}

// handleChatLine runs one line of input. A failed send prints the text
// back so it is not lost.
func handleChatLine(ctx context.Context, c *room.Controller, out *printer, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := c.Send(ctx, line, models.TypeText); err != nil {
			return false, fmt.Errorf("not sent (%w), your message: %s", err, line)
		}
		return false, nil
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/edit":
		id, text, ok := strings.Cut(rest, " ")
		if !ok {
			return false, errors.New("usage: /edit <id> <text>")
		}
		return false, c.Edit(ctx, id, strings.TrimSpace(text))
	case "/delete":
		if rest == "" {
			return false, errors.New("usage: /delete <id>")
		}
		return false, c.Delete(ctx, rest)
	case "/image", "/file":
		typ := models.TypeImage
		if command == "/file" {
			typ = models.TypeFile
		}
		if err := c.Send(ctx, rest, typ); err != nil {
			return false, fmt.Errorf("not sent (%w), your message: %s", err, rest)
		}
		return false, nil
	case "/who":
		typing := c.Typing()
		if len(typing) == 0 {
			out.notice("nobody is typing")
		}
		for _, u := range typing {
			out.notice("%s is typing", u.UserName)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s\n%s", command, chatHelp)
	}
}

func printUpdate(out *printer, c *room.Controller, u room.Update) {
	switch u.Kind {
	case room.MessageAdded:
		out.message(u.Message)
	case room.MessageEdited:
		for _, m := range c.Messages() {
			if m.ID == u.MessageID {
				out.message(m)
			}
		}
	case room.MessageDeleted:
		out.notice("message #%s deleted", u.MessageID)
	case room.TypingChanged:
		if u.User.UserName != "" {
			out.notice("%s is typing...", u.User.UserName)
		}
	case room.UserJoined:
		out.notice("%s joined", u.User.UserName)
	case room.UserLeft:
		out.notice("%s left", u.User.UserName)
	}
}
