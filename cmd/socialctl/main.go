package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"projx.dev/social/client"
	"projx.dev/social/config"
)

const SocialCtlVersion = "0.3.0"

func main() {
	usage := `Social network control.

Settings come from the environment (or .env):
    SOCIAL_API_BASE_URL, SOCIAL_AUTH_STYLE (bearer|cookie), SOCIAL_SESSION_PATH

Usage:
    socialctl login <email> [--password=<password>]
    socialctl logout
    socialctl whoami
    socialctl feed [--user=<user_id>]
    socialctl like <post_id>
    socialctl comment <post_id> <text>
    socialctl post [<text>] [--media=<path>]
    socialctl notifications
    socialctl accept <request_id>
    socialctl read-all
    socialctl friends
    socialctl chat <user_id>
    socialctl -h | --help
    socialctl --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --password=<password>   Prompted for when omitted.
    --user=<user_id>        Show one user's posts instead of the feed.
    --media=<path>          Image or video to attach.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SocialCtlVersion)
	if err != nil {
		panic(err)
	}

	// glog reads its own flags; keep them off the docopt command line
	flag.CommandLine.Parse([]string{"-logtostderr=false", "-stderrthreshold=ERROR"})
	defer glog.Flush()

	config.LoadEnv()
	cfg, err := config.LoadClient()
	if err != nil {
		fatal(err)
	}
	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		sessionPath = defaultSessionPath()
	}

	c, err := client.New(cfg)
	if err != nil {
		fatal(err)
	}
	if err := c.Session().Load(sessionPath); err != nil {
		fatal(err)
	}
	c.Session().OnUnauthorized(func(reason string) {
		client.RemoveSaved(sessionPath)
		fmt.Fprintf(os.Stderr, "%s\nRun: socialctl login <email>\n", reason)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &app{client: c, cfg: cfg, sessionPath: sessionPath}

	commands := []struct {
		name string
		run  func(context.Context, docopt.Opts) error
	}{
		{"login", app.login},
		{"logout", app.logout},
		{"whoami", app.whoami},
		{"feed", app.feed},
		{"like", app.like},
		{"comment", app.comment},
		{"post", app.post},
		{"notifications", app.notifications},
		{"accept", app.accept},
		{"read-all", app.readAll},
		{"friends", app.friends},
		{"chat", app.chat},
	}
	for _, cmd := range commands {
		if selected, _ := opts.Bool(cmd.name); selected {
			if err := cmd.run(ctx, opts); err != nil {
				fatal(err)
			}
			return
		}
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "socialctl", "session.json")
}

func fatal(err error) {
	// the unauthorized hook has already told the user to log in
	if !errors.Is(err, client.ErrUnauthorized) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	glog.Flush()
	os.Exit(1)
}
