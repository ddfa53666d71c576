package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"projx.dev/social/client"
	"projx.dev/social/config"
	"projx.dev/social/media"
	"projx.dev/social/models"
	"projx.dev/social/realtime"
	"projx.dev/social/viewmodel"
)

type app struct {
	client      *client.Client
	cfg         *config.Client
	sessionPath string
}

// errors are printed once by fatal, so only successes are shown here
var toaster = viewmodel.ToastFunc(func(level viewmodel.Level, message string) {
	if level == viewmodel.LevelSuccess {
		fmt.Println(message)
	}
})

func intArg(opts docopt.Opts, name string) (int, error) {
	raw, _ := opts.String(name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", name, raw)
	}
	return id, nil
}

func (a *app) login(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("<email>")

	var password string
	if p, err := opts.String("--password"); err == nil && p != "" {
		password = p
	} else {
		fmt.Print("Enter password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Printf("\n")
		if err != nil {
			return err
		}
		password = string(passwordBytes)
	}

	u, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := a.client.Session().Save(a.sessionPath); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Printf("Logged in as %s (#%d)\n", u.Name, u.ID)
	return nil
}

func (a *app) logout(ctx context.Context, opts docopt.Opts) error {
	err := a.client.Logout(ctx)
	if rmErr := client.RemoveSaved(a.sessionPath); rmErr != nil {
		return rmErr
	}
	if err != nil && client.IsTransport(err) {
		fmt.Fprintln(os.Stderr, "Server unreachable, local session removed")
		return nil
	}
	fmt.Println("Logged out")
	return err
}

func (a *app) me(ctx context.Context) (models.User, error) {
	if u, ok := a.client.Session().User(); ok {
		return u, nil
	}
	return a.client.CurrentUser(ctx)
}

func (a *app) whoami(ctx context.Context, opts docopt.Opts) error {
	u, err := a.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("#%d %s <%s>\n", u.ID, u.Name, u.Email)
	if u.Location != "" {
		fmt.Printf("  %s\n", u.Location)
	}
	if u.Description != "" {
		fmt.Printf("  %s\n", u.Description)
	}
	return nil
}

func (a *app) loadFeed(ctx context.Context, opts docopt.Opts) (*viewmodel.Feed, error) {
	feed := viewmodel.NewFeed(a.client, toaster)
	if raw, _ := opts.String("--user"); raw != "" {
		userID, err := intArg(opts, "--user")
		if err != nil {
			return nil, err
		}
		return feed, feed.LoadUserPosts(ctx, userID)
	}
	return feed, feed.Load(ctx)
}

func (a *app) printPost(p models.Post) {
	liked := " "
	if p.Liked {
		liked = "♥"
	}
	fmt.Printf("#%d %s · %s\n", p.ID, p.UserName, p.Timestamp.Local().Format(time.DateTime))
	if p.Content != "" {
		fmt.Printf("  %s\n", p.Content)
	}
	if p.MediaURL != "" {
		fmt.Printf("  [%s] %s\n", media.KindFromPath(p.MediaURL), a.client.MediaURL(p.MediaURL))
	}
	fmt.Printf("  %s %d likes, %d comments\n", liked, p.Likes, len(p.Comments))
	for _, c := range p.Comments {
		fmt.Printf("    %s: %s\n", c.UserName, c.Text)
	}
}

func (a *app) feed(ctx context.Context, opts docopt.Opts) error {
	feed, err := a.loadFeed(ctx, opts)
	if err != nil {
		return err
	}
	posts := feed.Posts()
	if len(posts) == 0 {
		fmt.Println("No posts yet")
	}
	for _, p := range posts {
		a.printPost(p)
	}
	return nil
}

func (a *app) like(ctx context.Context, opts docopt.Opts) error {
	postID, err := intArg(opts, "<post_id>")
	if err != nil {
		return err
	}
	feed, err := a.loadFeed(ctx, opts)
	if err != nil {
		return err
	}
	if err := feed.ToggleLike(ctx, postID); err != nil {
		return err
	}
	p, _ := feed.Post(postID)
	if p.Liked {
		fmt.Printf("Liked #%d (%d likes)\n", p.ID, p.Likes)
	} else {
		fmt.Printf("Unliked #%d (%d likes)\n", p.ID, p.Likes)
	}
	return nil
}

func (a *app) comment(ctx context.Context, opts docopt.Opts) error {
	postID, err := intArg(opts, "<post_id>")
	if err != nil {
		return err
	}
	text, _ := opts.String("<text>")
	feed, err := a.loadFeed(ctx, opts)
	if err != nil {
		return err
	}
	c, err := feed.SubmitComment(ctx, postID, text)
	if err != nil {
		return err
	}
	fmt.Printf("Comment #%d added\n", c.ID)
	return nil
}

func (a *app) post(ctx context.Context, opts docopt.Opts) error {
	text, _ := opts.String("<text>")
	var preview *media.Preview
	if path, _ := opts.String("--media"); path != "" {
		p, err := media.NewPreview(path)
		if err != nil {
			return err
		}
		if p.Kind != media.KindImage && p.Kind != media.KindVideo {
			return fmt.Errorf("%s is %s, posts take images or videos", p.Name, p.ContentType)
		}
		preview = p
	}
	feed := viewmodel.NewFeed(a.client, toaster)
	p, err := feed.CreatePost(ctx, text, preview)
	if err != nil {
		return err
	}
	a.printPost(p)
	return nil
}

func (a *app) loadNotifications(ctx context.Context, signals *viewmodel.Signals) (*viewmodel.Notifications, error) {
	n := viewmodel.NewNotifications(a.client, signals, toaster)
	return n, n.Fetch(ctx)
}

func (a *app) notifications(ctx context.Context, opts docopt.Opts) error {
	n, err := a.loadNotifications(ctx, nil)
	if err != nil {
		return err
	}
	items := n.Items()
	if len(items) == 0 {
		fmt.Println("No notifications")
	}
	for _, item := range items {
		marker := " "
		if !item.Read {
			marker = "*"
		}
		switch item.Type {
		case models.NotificationFriendRequest:
			line := fmt.Sprintf("%s %s sent you a friend request", marker, item.RequesterName)
			if n.CanAccept(item.FriendRequestID) {
				line += fmt.Sprintf("  (socialctl accept %s)", item.FriendRequestID)
			}
			fmt.Println(line)
		case models.NotificationFriendAccept:
			fmt.Printf("%s %s accepted your friend request\n", marker, item.RequesterName)
		default:
			fmt.Printf("%s %s from %s\n", marker, item.Type, item.RequesterName)
		}
	}
	fmt.Printf("%d unread\n", n.Unread())
	return nil
}

func (a *app) accept(ctx context.Context, opts docopt.Opts) error {
	requestID, _ := opts.String("<request_id>")
	signals := viewmodel.NewSignals()
	friends := viewmodel.NewFriends(a.client, toaster)
	signals.Subscribe(viewmodel.FriendListUpdated, func() {
		if err := friends.Load(ctx); err == nil {
			fmt.Printf("You now have %d friends\n", len(friends.List()))
		}
	})

	n, err := a.loadNotifications(ctx, signals)
	if err != nil {
		return err
	}
	return n.Accept(ctx, requestID)
}

func (a *app) readAll(ctx context.Context, opts docopt.Opts) error {
	n, err := a.loadNotifications(ctx, nil)
	if err != nil {
		return err
	}
	if err := n.MarkAllRead(ctx); err != nil {
		return err
	}
	fmt.Println("All notifications marked read")
	return nil
}

func (a *app) friends(ctx context.Context, opts docopt.Opts) error {
	friends := viewmodel.NewFriends(a.client, toaster)
	if err := friends.Load(ctx); err != nil {
		return err
	}
	list := friends.List()
	if len(list) == 0 {
		fmt.Println("No friends yet")
	}
	for _, u := range list {
		fmt.Printf("#%d %s\n", u.ID, u.Name)
	}
	return nil
}

// chat runs an interactive conversation until EOF, /quit or interrupt.
func (a *app) chat(ctx context.Context, opts docopt.Opts) error {
	partnerID, err := intArg(opts, "<user_id>")
	if err != nil {
		return err
	}
	me, err := a.me(ctx)
	if err != nil {
		return err
	}
	partner, err := a.client.User(ctx, partnerID)
	if err != nil {
		return err
	}

	settings := realtime.DefaultSettings()
	settings.HandshakeTimeout = a.cfg.WsHandshakeTimeout
	channel, err := realtime.Dial(ctx, a.client, settings)
	if err != nil {
		return err
	}
	defer channel.Close()
	lost := make(chan struct{}, 1)
	channel.OnState(func(state realtime.State) {
		if state == realtime.Disconnected {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})

	chat := viewmodel.NewChat(a.client, channel, media.NewUploader(a.client), me.ID, toaster)

	var printMu sync.Mutex
	printed := map[int]bool{}
	show := func() {
		printMu.Lock()
		defer printMu.Unlock()
		for _, m := range chat.Messages() {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			who := partner.Name
			if m.SenderID == me.ID {
				who = "you"
			}
			line := m.Message
			if m.MediaURL != "" {
				line = strings.TrimSpace(line + " [" + m.MediaType + "] " + a.client.MediaURL(m.MediaURL))
			}
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format(time.TimeOnly), who, line)
		}
	}
	chat.OnChange(show)

	if err := chat.Open(ctx, partnerID); err != nil {
		return err
	}
	defer chat.Close()
	show()
	fmt.Printf("Chatting with %s. /file <path> sends an attachment, /quit leaves.\n", partner.Name)

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
			return nil
		case <-lost:
			return fmt.Errorf("connection to %s lost", a.client.WebsocketURL())
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			var attachment *media.Preview
			text := line
			if path, found := strings.CutPrefix(strings.TrimSpace(line), "/file "); found {
				p, err := media.NewPreview(strings.TrimSpace(path))
				if err != nil {
					fmt.Fprintf(os.Stderr, "cannot attach: %v\n", err)
					continue
				}
				attachment, text = p, ""
			}
			if _, err := chat.Send(ctx, text, attachment); err != nil && !client.IsTransport(err) {
				fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
			} else if err != nil {
				fmt.Fprintln(os.Stderr, "not sent: server unreachable")
			}
		}
	}
}
