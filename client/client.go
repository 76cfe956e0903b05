// Package client is the terminal front end: it prints the conversation list,
// follows the live stream and sends what is typed.
package client

import (
	"bufio"
	"context"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	dmgrpc "dm-core/grpc"
	"dm-core/projection"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// IBackend is the slice of the DirectMessages API the terminal needs.
type IBackend interface {
	Me(ctx context.Context) (domain.User, error)
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)
	CreateOrGetConversation(ctx context.Context, participants ...domain.UserID) (domain.Conversation, error)
	SendMessage(ctx context.Context, id domain.ConversationID, content string) (domain.Message, error)
	Subscribe(ctx context.Context) (IStream, error)
}

type IStream interface {
	Recv() (event.Envelope, error)
}

// GrpcBackend adapts the typed gRPC client.
type GrpcBackend struct {
	*dmgrpc.Client
}

func (b GrpcBackend) Subscribe(ctx context.Context) (IStream, error) {
	return b.Client.Subscribe(ctx)
}

type App struct {
	log     *slog.Logger
	backend IBackend
	out     io.Writer
	cfg     Config

	mu    sync.Mutex
	me    domain.User
	list  projection.ConversationList
	names map[domain.UserID]string
}

func NewApp(log *slog.Logger, backend IBackend, out io.Writer, cfg Config) *App {
	return &App{log: log, backend: backend, out: out, cfg: cfg, names: make(map[domain.UserID]string)}
}

// Run follows the stream until ctx ends. Every (re)connection subscribes
// first then re-fetches the list, nothing published while offline is replayed.
func (a *App) Run(ctx context.Context) error {
	me, err := a.backend.Me(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.me = me
	a.list = projection.NewConversationList(me.ID)
	a.mu.Unlock()

	dispatcher := event.NewDispatcher(a.log).
		OnMessageCreated(a.onMessage).
		OnConversationCreated(a.onConversation).
		OnPresenceChanged(func(e event.PresenceChanged) {
			a.log.Debug("Presence changed", "user_id", e.UserID, "sessions", e.Count)
		})

	for {
		err := a.follow(ctx, dispatcher)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errors.ErrUnauthorized) {
			return err
		}
		a.log.Warn("Stream lost, reconnecting", "error", err, "in", a.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

func (a *App) follow(ctx context.Context, dispatcher *event.Dispatcher) error {
	stream, err := a.backend.Subscribe(ctx)
	if err != nil {
		return err
	}
	if err := a.Refresh(ctx); err != nil {
		return err
	}
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		dispatcher.Dispatch(env)
	}
}

// Refresh reconciles the cached list with the server and prints it.
func (a *App) Refresh(ctx context.Context) error {
	summaries, err := a.backend.ListConversations(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.list = projection.Reconcile(a.list, summaries)
	for _, summary := range summaries {
		for _, user := range summary.Participants {
			a.names[user.ID] = user.Name
		}
	}
	a.mu.Unlock()
	a.PrintConversations()
	return nil
}

func (a *App) onMessage(e event.MessageCreated) {
	a.mu.Lock()
	a.list = projection.Reduce(a.list, e)
	own := e.AuthorID == a.me.ID
	a.mu.Unlock()
	if own {
		// already printed when it was sent
		return
	}
	a.printMessage(e.Message, false)
}

func (a *App) onConversation(e event.ConversationCreated) {
	a.mu.Lock()
	a.list = projection.Reduce(a.list, e)
	a.mu.Unlock()
}

// PrintConversations renders the cached list, latest activity first.
func (a *App) PrintConversations() {
	a.mu.Lock()
	sorted := a.list.Sorted()
	a.mu.Unlock()

	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Conversation", "With", "Last message", "At"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, summary := range sorted {
		names := make([]string, 0, len(summary.Participants))
		for _, user := range summary.Participants {
			names = append(names, user.Name)
		}
		last, at := "", ""
		if summary.LastMessage != nil {
			last = summary.LastMessage.Content
			at = summary.LastMessage.CreatedAt.Local().Format(time.DateTime)
		}
		table.Append([]string{string(summary.ID), strings.Join(names, ", "), last, at})
	}
	table.Render()
}

// Send resolves the conversation with the recipients then sends.
// The returned message is printed at once, its echo is skipped.
func (a *App) Send(ctx context.Context, recipients []domain.UserID, content string) error {
	conversation, err := a.backend.CreateOrGetConversation(ctx, recipients...)
	if err != nil {
		return err
	}
	a.onConversation(event.ConversationCreated{Conversation: domain.ConversationSummary{
		ID:           conversation.ID,
		CreatedAt:    conversation.CreatedAt,
		Participants: a.usersOf(conversation),
	}})
	message, err := a.backend.SendMessage(ctx, conversation.ID, content)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.list = projection.Reduce(a.list, event.MessageCreated{Message: message, AuthorID: message.AuthorID})
	a.mu.Unlock()
	a.printMessage(message, true)
	return nil
}

// ReadCommands reads "@u2,u3 text" lines to send, and "/list" to print the list.
func (a *App) ReadCommands(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/list":
			if err := a.Refresh(ctx); err != nil {
				a.log.Error("Refresh failed", "error", err)
			}
		case strings.HasPrefix(line, "@"):
			target, content, _ := strings.Cut(line[1:], " ")
			recipients := make([]domain.UserID, 0)
			for _, id := range strings.Split(target, ",") {
				if id = strings.TrimSpace(id); id != "" {
					recipients = append(recipients, domain.UserID(id))
				}
			}
			if err := a.Send(ctx, recipients, content); err != nil {
				a.log.Error("Send failed", "error", err)
			}
		default:
			fmt.Fprintln(a.out, "usage: @user[,user] message | /list")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (a *App) usersOf(conversation domain.Conversation) []domain.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	var users []domain.User
	for _, id := range conversation.ParticipantIDs() {
		if id == a.me.ID {
			continue
		}
		name := a.names[id]
		if name == "" {
			name = string(id)
		}
		users = append(users, domain.User{ID: id, Name: name})
	}
	return users
}

func (a *App) printMessage(message domain.Message, own bool) {
	a.mu.Lock()
	author := a.names[message.AuthorID]
	a.mu.Unlock()
	if author == "" {
		author = string(message.AuthorID)
	}
	line := fmt.Sprintf("[%s] %s: %s", message.CreatedAt.Local().Format(time.TimeOnly), author, message.Content)
	if a.cfg.Colours {
		if own {
			line = color.New(color.FgGreen).Render(line)
		} else {
			line = color.New(color.FgCyan, color.OpBold).Render(line)
		}
	}
	fmt.Fprintln(a.out, line)
}
