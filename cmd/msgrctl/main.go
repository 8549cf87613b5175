package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/msgr/internal/ctlclient"
	"github.com/matheus3301/msgr/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Commands that work without a running daemon.
	switch args[0] {
	case "register":
		cmdRegister(sessionName, args[1:])
		return
	case "sessions":
		if len(args) >= 2 && args[1] == "list" {
			cmdSessionsList(*jsonFlag)
			return
		}
		usage("sessions list")
	}

	socketPath := session.SocketPath(sessionName)
	c, err := ctlclient.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmdWatch(ctx, c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := &command{c: c, json: *jsonFlag}
	run, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	run(ctx, cmd, args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: msgrctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show session status")
	fmt.Fprintln(os.Stderr, "  snapshot                        Dump the full client state")
	fmt.Fprintln(os.Stderr, "  chats                           List chats, most recent first")
	fmt.Fprintln(os.Stderr, "  open <chatId>                   Select a chat and load its history")
	fmt.Fprintln(os.Stderr, "  close                           Deselect the current chat")
	fmt.Fprintln(os.Stderr, "  messages <chatId>               Show loaded messages of a chat")
	fmt.Fprintln(os.Stderr, "  send <chatId> <text...>         Send a message")
	fmt.Fprintln(os.Stderr, "  retry <clientId>                Resend a failed message")
	fmt.Fprintln(os.Stderr, "  discard <clientId>              Drop a failed message")
	fmt.Fprintln(os.Stderr, "  typing <chatId> <on|off>        Send a typing indicator")
	fmt.Fprintln(os.Stderr, "  start-chat <friendId>           Open a direct chat with a friend")
	fmt.Fprintln(os.Stderr, "  group <name> <memberId...>      Create a group chat")
	fmt.Fprintln(os.Stderr, "  friends requests                List incoming friend requests")
	fmt.Fprintln(os.Stderr, "  friends add <userId>            Send a friend request")
	fmt.Fprintln(os.Stderr, "  friends accept <requestId>      Accept a friend request")
	fmt.Fprintln(os.Stderr, "  friends reject <requestId>      Reject a friend request")
	fmt.Fprintln(os.Stderr, "  friends remove <friendId>       Unfriend")
	fmt.Fprintln(os.Stderr, "  realtime <on|off>               Toggle the push channel")
	fmt.Fprintln(os.Stderr, "  refresh                         Reload chats, friends and groups")
	fmt.Fprintln(os.Stderr, "  search <query> [chatId]         Search cached messages")
	fmt.Fprintln(os.Stderr, "  watch [prefix...]               Stream daemon events")
	fmt.Fprintln(os.Stderr, "  sessions list                   List known sessions")
	fmt.Fprintln(os.Stderr, "  register [flags]                Create an account and store its token")
}

func usage(synopsis string) {
	fmt.Fprintf(os.Stderr, "usage: msgrctl %s\n", synopsis)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
