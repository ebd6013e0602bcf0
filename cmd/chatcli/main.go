package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/domain"
	"github.com/vedran77/pulseboard/internal/transport/ws"
	"github.com/vedran77/pulseboard/pkg/chatclient"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", os.Getenv("PULSEBOARD_TOKEN"), "bearer token")
	channel := flag.String("channel", "", "channel id to open")
	user := flag.String("user", "", "own user id, used for unread and read receipts")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if *token == "" {
		log.Fatal().Msg("-token or PULSEBOARD_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var self uuid.UUID
	if *user != "" {
		id, err := uuid.Parse(*user)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -user")
		}
		self = id
	}

	if err := run(ctx, *server, *token, *channel, self, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("chatcli")
	}
}

func run(ctx context.Context, server, token, channel string, self uuid.UUID, log zerolog.Logger) error {
	wsURL, err := websocketURL(server)
	if err != nil {
		return err
	}

	api := chatclient.NewAPI(server, token, nil)
	conn, err := chatclient.Dial(ctx, wsURL, token)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	out := &printer{names: map[uuid.UUID]string{}}
	session := chatclient.NewSession(chatclient.SessionConfig{
		API:     api,
		Conn:    conn,
		UserID:  self,
		Log:     log,
		OnEvent: out.event,
	})

	if err := session.LoadChannels(ctx); err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	if channel == "" {
		for _, ch := range session.Channels() {
			fmt.Printf("%s  #%s  (%d unread)\n", ch.ID, ch.Name, ch.UnreadCount)
		}
		return nil
	}

	channelID, err := uuid.Parse(channel)
	if err != nil {
		return fmt.Errorf("channel id: %w", err)
	}
	if err := session.Select(ctx, channelID); err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	for _, m := range session.Messages() {
		out.message(m)
	}

	listenErr := make(chan error, 1)
	go func() { listenErr <- session.Listen(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return session.Deselect(context.Background())
		case err := <-listenErr:
			return err
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return session.Deselect(ctx)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			session.SetDraft(line)
			if err := session.Send(ctx); err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
		}
	}
}

// websocketURL maps the server base URL onto its /ws endpoint.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

type printer struct {
	names map[uuid.UUID]string
}

func (p *printer) message(m domain.Message) {
	if m.SenderName != "" {
		p.names[m.SenderID] = m.SenderName
	}
	fmt.Printf("%s  %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), p.name(m.SenderID), m.Text)
}

func (p *printer) name(id uuid.UUID) string {
	if n, ok := p.names[id]; ok {
		return n
	}
	return id.String()[:8]
}

func (p *printer) event(evt ws.Event) {
	switch evt.Type {
	case ws.EventTypeMessageReceived:
		var m domain.Message
		if json.Unmarshal(evt.Payload, &m) == nil {
			p.message(m)
		}
	case ws.EventTypeMessageEdited:
		var m domain.Message
		if json.Unmarshal(evt.Payload, &m) == nil {
			fmt.Printf("  (edited) %s: %s\n", p.name(m.SenderID), m.Text)
		}
	case ws.EventTypeMessageDeleted:
		fmt.Println("  (a message was deleted)")
	case ws.EventTypeUserTyping:
		var t ws.TypingPayload
		if json.Unmarshal(evt.Payload, &t) == nil {
			name := t.DisplayName
			if name == "" {
				name = p.name(t.UserID)
			}
			fmt.Printf("  %s is typing...\n", name)
		}
	case ws.EventTypeChannelDeleted:
		fmt.Println("  channel was deleted")
	case ws.EventTypeError:
		var e ws.ErrorPayload
		if json.Unmarshal(evt.Payload, &e) == nil {
			fmt.Printf("  error %s: %s\n", e.Code, e.Message)
		}
	}
}
