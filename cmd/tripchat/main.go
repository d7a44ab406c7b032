// ABOUTME: Entry point for the tripchat terminal client
// ABOUTME: Wires config, booking client, channel, session and amendment coordinator

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/wayline/tripchat/internal/amendment"
	"github.com/wayline/tripchat/internal/booking"
	"github.com/wayline/tripchat/internal/channel"
	"github.com/wayline/tripchat/internal/config"
	"github.com/wayline/tripchat/internal/recurrence"
	"github.com/wayline/tripchat/internal/session"
	"github.com/wayline/tripchat/internal/wire"
)

// Version is set at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: TRIPCHAT_CONFIG env var > XDG_CONFIG_HOME/tripchat/tripchat.yaml > ~/.config/tripchat/tripchat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TRIPCHAT_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "tripchat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "tripchat", "tripchat.yaml")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: tripchat <conversation-id> [user-id]  (version %s)\n", version)
		os.Exit(2)
	}
	conversationID := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := booking.NewClient(cfg.Booking.APIURL, cfg.Booking.Token, logger)

	userID := ""
	if len(os.Args) > 2 {
		userID = os.Args[2]
	} else {
		userID, err = svc.CurrentUserID(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolving user: %v\n", err)
			os.Exit(1)
		}
	}

	ch := channel.New(cfg.Relay.WSURL, logger)
	defer ch.Close()

	sess := session.New(ch, session.Options{
		TypingQuiet:      cfg.Chat.TypingQuiet,
		ReadReceiptDelay: cfg.Chat.ReadReceiptDelay,
		Logger:           logger,
	})
	defer sess.Close()
	sess.SetUser(userID)
	sess.SetConversation(conversationID)

	coord := amendment.NewCoordinator(sess, svc, logger)

	events, _ := sess.Events(ctx)
	go printEvents(events)

	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	sess.RequestHistory()

	repl(ctx, sess, coord, svc)
	sess.Disconnect()
}

func printEvents(events <-chan channel.Event) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	for ev := range events {
		switch ev.Kind {
		case channel.EventConnected:
			green.Println("* connected")
		case channel.EventDisconnected:
			yellow.Printf("* disconnected: %s (type /connect to redial)\n", ev.Reason)
		case channel.EventError:
			yellow.Printf("* channel error: %s\n", ev.Reason)
		case channel.EventHistory:
			gray.Printf("* loaded %d messages\n", len(ev.History))
		case channel.EventMessage:
			printMessage(ev.Message, cyan, gray)
		}
	}
}

func printMessage(m *wire.Message, cyan, gray *color.Color) {
	if m == nil || m.Type == wire.TypeTyping || m.Type == wire.TypeReadReceipt {
		return
	}
	if r := amendment.Render(m, time.Now()); r.IsAmendment {
		if r.Err != nil {
			gray.Printf("[amendment] unable to display details: %v\n", r.Err)
			return
		}
		cyan.Printf("[amendment %s] %s\n", r.State, r.Summary)
		return
	}
	switch m.Sender {
	case wire.SenderSystem:
		gray.Printf("-- %s\n", m.Content)
	case wire.SenderUser:
		fmt.Printf("you: %s (%s)\n", m.Content, m.Status)
	default:
		cyan.Printf("%s: %s\n", m.From, m.Content)
	}
}

func repl(ctx context.Context, sess *session.Session, coord *amendment.Coordinator, svc *booking.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			sess.Typing()
			if !sess.SendMessage(line) {
				fmt.Println("! not connected, message not sent")
			}
			continue
		}
		runCommand(ctx, line, sess, coord, svc)
	}
}

func runCommand(ctx context.Context, line string, sess *session.Session, coord *amendment.Coordinator, svc *booking.Client) {
	args := strings.Fields(line)
	switch args[0] {
	case "/quit":
		os.Exit(0)

	case "/connect":
		if err := sess.Connect(ctx); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/history":
		if !sess.RequestHistory() {
			fmt.Println("! not connected")
		}

	case "/balance":
		balance, err := svc.Balance(ctx)
		if err != nil {
			fmt.Printf("! %v\n", err)
			return
		}
		fmt.Printf("balance: %.2f\n", balance)

	case "/amend": // /amend <booking-id> <price>
		if len(args) != 3 {
			fmt.Println("usage: /amend <booking-id> <price>")
			return
		}
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fmt.Println("usage: /amend <booking-id> <price>")
			return
		}
		a := &booking.Amendment{BookingID: args[1], ProposedPrice: &price}
		if _, err := coord.CreateAndBroadcast(ctx, a, false); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/cancel": // /cancel <booking-id>
		if len(args) != 2 {
			fmt.Println("usage: /cancel <booking-id>")
			return
		}
		if _, err := coord.ProposeCancellation(ctx, args[1], false); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/approve": // /approve <amendment-id>
		if len(args) != 2 {
			fmt.Println("usage: /approve <amendment-id>")
			return
		}
		if err := coord.Approve(ctx, args[1], false); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/schedule": // /schedule <booking-id> <weekly|fortnightly|monthly> <HH:MM> [days like 1,3,5]
		if len(args) < 4 {
			fmt.Println("usage: /schedule <booking-id> <weekly|fortnightly|monthly> <HH:MM> [weekdays]")
			return
		}
		expr, err := buildExpression(args[2], args[3], args[4:])
		if err != nil {
			fmt.Printf("! %v\n", err)
			return
		}
		fmt.Printf("proposing: %s\n", recurrence.Describe(expr, time.Now()))
		if _, err := coord.ProposeSchedule(ctx, args[1], expr, nil, false); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/subrides": // /subrides <journey-id> <price> <expression...>
		if len(args) < 4 {
			fmt.Println("usage: /subrides <journey-id> <price> <expression>")
			return
		}
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fmt.Println("usage: /subrides <journey-id> <price> <expression>")
			return
		}
		j := &booking.Journey{ID: args[1], Price: price, Cron: strings.Join(args[3:], " ")}
		subs := booking.SubRides(j, time.Now(), 10)
		for _, s := range subs {
			fmt.Printf("  %s  %.2f\n", s.Date.Format("Mon 2 Jan 15:04"), s.Price)
		}
		fmt.Printf("total: %.2f\n", booking.TotalPrice(subs))

	default:
		fmt.Println("commands: /history /amend /cancel /approve /schedule /subrides /balance /connect /quit")
	}
}

// buildExpression turns REPL arguments into a schedule expression.
func buildExpression(cadenceArg, clock string, dayArgs []string) (string, error) {
	at, err := time.Parse("15:04", clock)
	if err != nil {
		return "", fmt.Errorf("bad time %q, want HH:MM", clock)
	}
	// Monthly rules take the day of month from today.
	now := time.Now()
	at = time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())

	var cadence recurrence.Cadence
	switch cadenceArg {
	case "weekly":
		cadence = recurrence.Weekly
	case "fortnightly":
		cadence = recurrence.Fortnightly
	case "monthly":
		cadence = recurrence.Monthly
	default:
		return "", fmt.Errorf("bad cadence %q", cadenceArg)
	}

	var weekdays []time.Weekday
	if len(dayArgs) > 0 {
		for _, p := range strings.Split(dayArgs[0], ",") {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || n > 6 {
				return "", fmt.Errorf("bad weekday %q", p)
			}
			weekdays = append(weekdays, time.Weekday(n))
		}
	}
	return recurrence.Build(cadence, weekdays, at), nil
}
