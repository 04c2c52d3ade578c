// cmd/tablesync/main.go is a terminal client for one poker room.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jason-s-yu/tablesync/internal/action"
	"github.com/jason-s-yu/tablesync/internal/api"
	"github.com/jason-s-yu/tablesync/internal/auth"
	"github.com/jason-s-yu/tablesync/internal/cache"
	"github.com/jason-s-yu/tablesync/internal/config"
	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/render"
	"github.com/jason-s-yu/tablesync/internal/session"
	"github.com/jason-s-yu/tablesync/internal/transport"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	roomID := flag.String("room", "", "room id to join")
	create := flag.String("create", "", "create a room with this name and join it")
	username := flag.String("user", "", "username to log in with when no session is stored")
	logout := flag.Bool("logout", false, "end the stored session and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.Level())
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		if rdb, err = cache.ConnectAddr(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
			log.WithError(err).Warn("redis unavailable, using the session file")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var store auth.Store = auth.NewFileStore(cfg.SessionFile)
	if rdb != nil {
		store = cache.NewSessionStore(rdb, cfg.SessionKey, 0)
	}

	holder := auth.NewHolder(nil)
	client := api.New(transport.NewClient(cfg.BaseURL, holder,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(log),
	))

	creds, err := signIn(ctx, client, store, holder, *username)
	if err != nil {
		log.WithError(err).Fatal("sign in failed")
	}
	log = log.WithField("user", creds.Username)

	if *logout {
		if err := client.Logout(ctx); err != nil {
			log.WithError(err).Warn("server logout failed")
		}
		if err := store.Clear(ctx); err != nil {
			log.WithError(err).Fatal("failed to clear session")
		}
		fmt.Println("logged out")
		return
	}

	if *create != "" {
		room, err := client.CreateRoom(ctx, models.CreateRoomRequest{Name: *create})
		if err != nil {
			log.WithError(err).Fatal("failed to create room")
		}
		*roomID = room.RoomID
	}
	if *roomID == "" {
		if err := printRooms(ctx, client, os.Stdout); err != nil {
			log.WithError(err).Fatal("failed to list rooms")
		}
		return
	}

	room := client.Room(*roomID)
	if err := room.Join(ctx); err != nil {
		log.WithError(err).Fatal("failed to join room")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	var outMu sync.Mutex
	printf := func(format string, args ...interface{}) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Printf(format, args...)
	}

	var recorder session.Recorder
	if rdb != nil {
		recorder = cache.NewRecorder(rdb, cfg.HistorianQueue)
	}

	sess := session.New(room, session.Options{
		RoomID:        *roomID,
		ViewerID:      creds.UserID,
		ViewerName:    creds.Username,
		FastPoll:      cfg.FastPoll,
		SlowPoll:      cfg.SlowPoll,
		QuickChatPoll: cfg.QuickChatPoll,
		Logger:        log,
		Recorder:      recorder,
		// Prompts run on the command loop, which is the only reader of lines.
		Confirmer: action.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
			printf("%s [y/N] ", prompt)
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case line, ok := <-lines:
				if !ok {
					return false, io.EOF
				}
				answer := strings.ToLower(strings.TrimSpace(line))
				return answer == "y" || answer == "yes", nil
			}
		}),
		OnUpdate: func(v render.View) {
			outMu.Lock()
			defer outMu.Unlock()
			if err := render.Write(os.Stdout, v); err != nil {
				log.WithError(err).Warn("render failed")
			}
		},
		OnNotice: func(n session.Notice) {
			printf("! %s\n", n.Message)
		},
	})
	if err := sess.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start session")
	}

	printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			leave(sess, log)
			return
		case line, ok := <-lines:
			if !ok {
				leave(sess, log)
				return
			}
			if done := run(ctx, sess, line, printf); done {
				return
			}
		}
	}
}

// signIn restores the stored session or logs in as username.
func signIn(ctx context.Context, client *api.Client, store auth.Store, holder *auth.Holder, username string) (*auth.Credentials, error) {
	creds, err := auth.Restore(ctx, store, func(ctx context.Context, c *auth.Credentials) (*auth.Credentials, error) {
		holder.Set(c)
		info, err := client.Me(ctx)
		if err != nil {
			holder.Set(nil)
			return nil, err
		}
		return credentialsFrom(info), nil
	})
	if err == nil {
		holder.Set(creds)
		return creds, nil
	}
	if !errors.Is(err, auth.ErrNoSession) {
		return nil, err
	}

	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("no stored session: pass -user to log in")
	}
	info, err := client.Login(ctx, username)
	if err != nil {
		return nil, err
	}
	creds = credentialsFrom(info)
	holder.Set(creds)
	if err := store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return creds, nil
}

func credentialsFrom(info *models.SessionInfo) *auth.Credentials {
	return &auth.Credentials{
		UserID:    info.UserID,
		Username:  info.Username,
		ExpiresAt: info.ExpiresAt,
		Token:     info.Token,
	}
}

func printRooms(ctx context.Context, client *api.Client, w io.Writer) error {
	list, err := client.ListRooms(ctx, 0)
	if err != nil {
		return err
	}
	if len(list.Rooms) == 0 {
		_, err := fmt.Fprintln(w, "no rooms yet: use -create NAME")
		return err
	}
	for _, r := range list.Rooms {
		if _, err := fmt.Fprintf(w, "%-24s %-20s %-8s %d players\n", r.RoomID, r.Name, r.Status, len(r.Players)); err != nil {
			return err
		}
	}
	return nil
}

// run executes one input line and reports whether the client should exit.
func run(ctx context.Context, sess *session.Session, line string, printf func(string, ...interface{})) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		printf("%s\n", err)
		return false
	}

	// Failures are already reported through OnNotice.
	switch cmd.verb {
	case verbAct:
		_, _ = sess.Act(ctx, cmd.action, cmd.amount)
	case verbReveal:
		_, _ = sess.Reveal(ctx, cmd.mask)
	case verbSay:
		_ = sess.Say(ctx, cmd.phrase)
	case verbPhrases:
		for _, id := range sess.Phrases() {
			printf("  %-14s %s\n", id, render.PhraseText(id))
		}
	case verbStart:
		_ = sess.StartGame(ctx)
	case verbNext:
		_ = sess.NextHand(ctx)
	case verbShow:
		v := sess.View()
		var b strings.Builder
		_ = render.Write(&b, v)
		printf("%s", b.String())
	case verbHelp:
		printf("%s\n", helpText)
	case verbLeave:
		if err := sess.Leave(ctx); err == nil {
			printf("left the room\n")
		}
		return true
	}
	return false
}

func leave(sess *session.Session, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultTimeout)
	defer cancel()
	if err := sess.Leave(ctx); err != nil {
		log.WithError(err).Warn("leave failed")
	}
}
