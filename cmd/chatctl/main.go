// chatctl calls the remote chat service directly with the organisation
// token. It is meant for operators inspecting rooms and for scripted
// uploads; the chatrooms API is the entry point for applications.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/example/chatrooms/internal/chatclient"
	"github.com/example/chatrooms/internal/config"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one chatctl subcommand. flags registers its options on fs;
// exec runs after parsing with the remaining positional arguments.
type command struct {
	summary string
	flags   func(fs *pflag.FlagSet) execFunc
}

var commands = map[string]command{
	"rooms":  {summary: "search rooms by name or participant email", flags: roomsCommand},
	"room":   {summary: "show one room as seen by a participant", flags: roomCommand},
	"unread": {summary: "list rooms with unread messages for a participant", flags: unreadCommand},
	"post":   {summary: "post a chat message to a room", flags: postCommand},
	"token":  {summary: "issue a participant token", flags: tokenCommand},
	"upload": {summary: "create an attachment and upload a file to it", flags: uploadCommand},
}

var commandOrder = []string{"rooms", "room", "unread", "post", "token", "upload"}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		baseURL string
		token   string
		timeout time.Duration
		retries int
		verbose bool
	)

	global := pflag.NewFlagSet("chatctl", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	global.StringVar(&baseURL, "base-url", os.Getenv(config.Prefix+"_API_BASE_URL"), "chat service base URL")
	global.StringVar(&token, "token", os.Getenv(config.Prefix+"_ORGANISATION_TOKEN"), "organisation token")
	global.DurationVar(&timeout, "timeout", chatclient.DefaultTimeout, "per-call timeout including retries")
	global.IntVar(&retries, "retries", chatclient.DefaultMaxRetries, "connection retries (0 disables them)")
	global.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr, global)
		return pflag.ErrHelp
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	fs := pflag.NewFlagSet("chatctl "+rest[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	exec := cmd.flags(fs)
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if retries == 0 {
		retries = chatclient.NoRetries
	}
	client, err := chatclient.NewClient(chatclient.Config{
		BaseURL:           baseURL,
		OrganisationToken: token,
		Timeout:           timeout,
		MaxRetries:        retries,
		Logger:            slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	return exec(ctx, client, fs.Args(), stdout)
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: chatctl [global flags] <command> [flags]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n%s", global.FlagUsages())
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
