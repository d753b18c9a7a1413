// chatctl — консольный клиент мессенджера: список переписок, история, отправка, live-лента.
//
//	CHATCTL_PASSWORD=... chatctl -api http://localhost:8080 -role client -email me@x.io list
//	chatctl ... history 42
//	chatctl ... send 42 "привет"
//	chatctl ... tail 42
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/pkg/logger"
	"github.com/cwrk-planet/messenger/pkg/messaging"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "базовый URL REST API")
	roleFlag := flag.String("role", "client", "client | freelancer")
	email := flag.String("email", "", "email учётки")
	timeout := flag.Duration("timeout", messaging.DefaultCallTimeout, "таймаут одного запроса")
	fanOut := flag.Int("fan-out", messaging.DefaultFanOut, "параллельных загрузок истории")
	debug := flag.Bool("debug", false, "debug-логи в stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger.Init(logger.Config{
		Env:     logger.EnvDev,
		Service: "chatctl",
		Backend: logger.BackendStd,
		Output:  os.Stderr,
		Level:   level,
	})

	if err := run(*apiURL, *roleFlag, *email, *timeout, *fanOut, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "chatctl:", err)
		os.Exit(1)
	}
}

func run(apiURL, roleFlag, email string, timeout time.Duration, fanOut int, args []string) error {
	if len(args) == 0 {
		return errors.New("команда: list | history <id> | send <id> <text> | tail <id>")
	}
	role, err := domain.ParseRole(roleFlag)
	if err != nil {
		return err
	}
	password := os.Getenv("CHATCTL_PASSWORD")
	if email == "" || password == "" {
		return errors.New("нужны -email и CHATCTL_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := messaging.NewHTTPAPI(apiURL, messaging.WithCallTimeout(timeout))
	sess, err := messaging.Login(ctx, api, role, email, password,
		messaging.WithOnExpired(func() { fmt.Fprintln(os.Stderr, "сессия истекла, войдите заново") }))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() {
		lctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sess.Logout(lctx); err != nil {
			slog.Warn("chatctl: logout failed", logger.Err(err))
		}
	}()

	list := messaging.NewConversationList(sess, messaging.WithFanOut(fanOut), messaging.WithFetchTimeout(timeout))

	switch cmd := args[0]; cmd {
	case "list":
		return cmdList(ctx, list)
	case "history":
		cp, err := counterpartArg(ctx, list, args)
		if err != nil {
			return err
		}
		pane := messaging.NewChatPane(sess, list, nil)
		if err := pane.SelectCounterpart(ctx, cp); err != nil {
			return err
		}
		printMessages(sess.Party(), pane.Messages())
		return nil
	case "send":
		if len(args) < 3 {
			return errors.New("send <id> <text>")
		}
		cp, err := counterpartArg(ctx, list, args)
		if err != nil {
			return err
		}
		pane := messaging.NewChatPane(sess, list, nil)
		if err := pane.SelectCounterpart(ctx, cp); err != nil {
			return err
		}
		msg, err := pane.SendMessage(ctx, strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("отправлено #%d в %s\n", msg.ID, msg.CreatedAt.Local().Format(time.DateTime))
		return nil
	case "tail":
		cp, err := counterpartArg(ctx, list, args)
		if err != nil {
			return err
		}
		return cmdTail(ctx, apiURL, sess, list, cp)
	default:
		return fmt.Errorf("неизвестная команда %q", cmd)
	}
}

func cmdList(ctx context.Context, list *messaging.ConversationList) error {
	items, err := list.Load(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tИМЯ\tНЕПРОЧ.\tПОСЛЕДНЕЕ")
	for _, c := range items {
		last := "-"
		if c.Latest != nil {
			last = fmt.Sprintf("%s  %s", c.Latest.CreatedAt.Local().Format("02.01 15:04"), preview(c.Latest.Content))
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.Counterpart.ID, c.Counterpart.Name, c.Unread, last)
	}
	return tw.Flush()
}

// cmdTail держит комнату открытой и печатает входящие до Ctrl+C.
func cmdTail(ctx context.Context, apiURL string, sess *messaging.Session, list *messaging.ConversationList, cp domain.Counterpart) error {
	wsURL, err := realtimeURL(apiURL)
	if err != nil {
		return err
	}
	ch := messaging.NewChannel(wsURL, sess, messaging.ChannelOptions{Reconnect: true})
	defer func() { _ = ch.Close() }()
	if err := ch.Connect(ctx); err != nil {
		return fmt.Errorf("realtime: %w", err)
	}

	pane := messaging.NewChatPane(sess, list, ch)
	defer pane.Close()
	if err := pane.SelectCounterpart(ctx, cp); err != nil {
		return err
	}
	printed := make(printedSet)
	printMessages(sess.Party(), printed.fresh(pane.Messages()))

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			// сообщение с более ранним created_at встаёт в середину истории
			if msgs := printed.fresh(pane.Messages()); len(msgs) > 0 {
				printMessages(sess.Party(), msgs)
			}
		}
	}
}

// printedSet — id уже выведенных сообщений.
type printedSet map[int64]struct{}

// fresh возвращает ещё не выведенные сообщения и запоминает их.
func (p printedSet) fresh(msgs []domain.Message) []domain.Message {
	var out []domain.Message
	for _, m := range msgs {
		if _, ok := p[m.ID]; ok {
			continue
		}
		p[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// counterpartArg ищет собеседника по id среди контрактов.
func counterpartArg(ctx context.Context, list *messaging.ConversationList, args []string) (domain.Counterpart, error) {
	if len(args) < 2 {
		return domain.Counterpart{}, fmt.Errorf("%s <id>", args[0])
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return domain.Counterpart{}, fmt.Errorf("некорректный id %q", args[1])
	}
	if _, err := list.Load(ctx); err != nil {
		return domain.Counterpart{}, err
	}
	c, ok := list.Get(id)
	if !ok {
		return domain.Counterpart{}, fmt.Errorf("нет контракта с собеседником %d", id)
	}
	return c.Counterpart, nil
}

func realtimeURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func printMessages(me domain.Party, msgs []domain.Message) {
	for _, m := range msgs {
		who := "<"
		if m.SentBy(me) {
			who = ">"
		}
		fmt.Printf("%s %s #%d %s\n", m.CreatedAt.Local().Format("02.01 15:04"), who, m.ID, m.Content)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return s
}
