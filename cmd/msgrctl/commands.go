package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/msgr/internal/api"
	"github.com/matheus3301/msgr/internal/ctlclient"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/session"
)

type command struct {
	c    *ctlclient.Client
	json bool
}

var commands = map[string]func(ctx context.Context, cmd *command, args []string){
	"status":     cmdStatus,
	"snapshot":   cmdSnapshot,
	"chats":      cmdChats,
	"open":       cmdOpen,
	"close":      cmdClose,
	"messages":   cmdMessages,
	"send":       cmdSend,
	"retry":      cmdRetry,
	"discard":    cmdDiscard,
	"typing":     cmdTyping,
	"start-chat": cmdStartChat,
	"group":      cmdGroup,
	"friends":    cmdFriends,
	"realtime":   cmdRealtime,
	"refresh":    cmdRefresh,
	"search":     cmdSearch,
}

func cmdStatus(ctx context.Context, cmd *command, _ []string) {
	resp, err := cmd.c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:    %s\n", resp.Session)
	fmt.Printf("User:       %s (%d)\n", resp.User.Username, resp.User.ID)
	fmt.Printf("Connection: %s\n", resp.Connection)
	fmt.Printf("Realtime:   %v\n", resp.Realtime)
	fmt.Printf("Chats:      %d (%d unread)\n", resp.Chats, resp.TotalUnread)
	fmt.Printf("Online:     %d friends\n", resp.OnlineFriends)
	fmt.Printf("Uptime:     %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).String())
	if resp.DroppedEvents > 0 {
		fmt.Printf("Dropped:    %d events\n", resp.DroppedEvents)
	}
}

func cmdSnapshot(ctx context.Context, cmd *command, _ []string) {
	snap, err := cmd.c.Snapshot(ctx)
	if err != nil {
		fail(err)
	}
	outputJSON(snap)
}

func cmdChats(ctx context.Context, cmd *command, _ []string) {
	snap, err := cmd.c.Snapshot(ctx)
	if err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(snap.Chats)
		return
	}
	if len(snap.Chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range snap.Chats {
		marker := " "
		if ch.ID == snap.SelectedChat {
			marker = "*"
		}
		unread := ""
		if ch.UnreadCount > 0 {
			unread = fmt.Sprintf(" [%d]", ch.UnreadCount)
		}
		fmt.Printf("%s %-12s %-6s %-24s%s %s\n", marker, ch.ID, ch.Kind, ch.Name, unread, ch.LastMessage)
	}
}

func cmdOpen(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("open <chatId>")
	}
	resp, err := cmd.c.OpenChat(ctx, args[0])
	if err != nil {
		fail(err)
	}
	printChatMessages(cmd, resp)
}

func cmdClose(ctx context.Context, cmd *command, _ []string) {
	if err := cmd.c.Call(ctx, api.MethodCloseChat, nil, nil); err != nil {
		fail(err)
	}
}

func cmdMessages(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("messages <chatId>")
	}
	var resp api.ChatMessages
	if err := cmd.c.Call(ctx, api.MethodMessages, map[string]any{"chatId": args[0]}, &resp); err != nil {
		fail(err)
	}
	printChatMessages(cmd, &resp)
}

func printChatMessages(cmd *command, resp *api.ChatMessages) {
	if cmd.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("# %s (%s)\n", resp.Chat.Name, resp.Chat.ID)
	for _, m := range resp.Messages {
		printMessage(m)
	}
}

func printMessage(m model.Message) {
	suffix := ""
	switch m.Status {
	case model.StatusSending:
		suffix = " (sending)"
	case model.StatusFailed:
		suffix = fmt.Sprintf(" (failed, clientId %s)", m.ClientID)
	}
	fmt.Printf("%s  %-16s %s%s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.SenderName, m.Content, suffix)
}

func cmdSend(ctx context.Context, cmd *command, args []string) {
	if len(args) < 2 {
		usage("send <chatId> <text...>")
	}
	msg, err := cmd.c.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent message %d\n", msg.ID)
}

func cmdRetry(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("retry <clientId>")
	}
	var out struct {
		Message model.Message `json:"message"`
	}
	if err := cmd.c.Call(ctx, api.MethodRetryMessage, map[string]any{"clientId": args[0]}, &out); err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(out.Message)
		return
	}
	fmt.Printf("Sent message %d\n", out.Message.ID)
}

func cmdDiscard(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("discard <clientId>")
	}
	if err := cmd.c.Call(ctx, api.MethodDiscardMessage, map[string]any{"clientId": args[0]}, nil); err != nil {
		fail(err)
	}
}

func cmdTyping(ctx context.Context, cmd *command, args []string) {
	if len(args) != 2 {
		usage("typing <chatId> <on|off>")
	}
	req := map[string]any{"chatId": args[0], "isTyping": parseOnOff(args[1], "typing <chatId> <on|off>")}
	if err := cmd.c.Call(ctx, api.MethodSetTyping, req, nil); err != nil {
		fail(err)
	}
}

func cmdStartChat(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("start-chat <friendId>")
	}
	var out struct {
		Chat model.Chat `json:"chat"`
	}
	req := map[string]any{"friendId": parseID(args[0])}
	if err := cmd.c.Call(ctx, api.MethodStartChat, req, &out); err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(out.Chat)
		return
	}
	fmt.Printf("Chat %s with %s\n", out.Chat.ID, out.Chat.Name)
}

func cmdGroup(ctx context.Context, cmd *command, args []string) {
	if len(args) < 2 {
		usage("group <name> <memberId...>")
	}
	members := make([]int64, 0, len(args)-1)
	for _, a := range args[1:] {
		members = append(members, parseID(a))
	}
	var out struct {
		Group model.Group `json:"group"`
	}
	if err := cmd.c.Call(ctx, api.MethodCreateGroup, map[string]any{"name": args[0], "members": members}, &out); err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(out.Group)
		return
	}
	fmt.Printf("Created group %q (%d)\n", out.Group.Name, out.Group.ID)
}

func cmdFriends(ctx context.Context, cmd *command, args []string) {
	const synopsis = "friends <requests|add|accept|reject|remove> [id]"
	if len(args) == 0 {
		usage(synopsis)
	}
	if args[0] == "requests" {
		var out struct {
			Requests []model.FriendRequest `json:"requests"`
		}
		if err := cmd.c.Call(ctx, api.MethodListFriendRequests, nil, &out); err != nil {
			fail(err)
		}
		if cmd.json {
			outputJSON(out.Requests)
			return
		}
		if len(out.Requests) == 0 {
			fmt.Println("No pending requests.")
			return
		}
		for _, r := range out.Requests {
			fmt.Printf("%-6d %-20s %s\n", r.ID, r.From.Username, r.From.FullName)
		}
		return
	}

	if len(args) != 2 {
		usage(synopsis)
	}
	id := parseID(args[1])
	var method string
	var req map[string]any
	switch args[0] {
	case "add":
		method, req = api.MethodSendFriendRequest, map[string]any{"userId": id}
	case "accept":
		method, req = api.MethodAcceptFriendRequest, map[string]any{"requestId": id}
	case "reject":
		method, req = api.MethodRejectFriendRequest, map[string]any{"requestId": id}
	case "remove":
		method, req = api.MethodUnfriend, map[string]any{"friendId": id}
	default:
		usage(synopsis)
	}
	if err := cmd.c.Call(ctx, method, req, nil); err != nil {
		fail(err)
	}
}

func cmdRealtime(ctx context.Context, cmd *command, args []string) {
	if len(args) != 1 {
		usage("realtime <on|off>")
	}
	if err := cmd.c.SetRealtime(ctx, parseOnOff(args[0], "realtime <on|off>")); err != nil {
		fail(err)
	}
}

func cmdRefresh(ctx context.Context, cmd *command, _ []string) {
	if err := cmd.c.Call(ctx, api.MethodRefresh, nil, nil); err != nil {
		fail(err)
	}
}

func cmdSearch(ctx context.Context, cmd *command, args []string) {
	if len(args) < 1 || len(args) > 2 {
		usage("search <query> [chatId]")
	}
	chatID := ""
	if len(args) == 2 {
		chatID = args[1]
	}
	hits, err := cmd.c.Search(ctx, args[0], chatID, 0)
	if err != nil {
		fail(err)
	}
	if cmd.json {
		outputJSON(hits)
		return
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, h := range hits {
		fmt.Printf("%-12s %-16s %s\n", h.Message.ChatID, h.Message.SenderName, h.Snippet)
	}
}

func cmdWatch(ctx context.Context, c *ctlclient.Client, prefixes []string, jsonOut bool) {
	err := c.Watch(ctx, prefixes, func(evt *structpb.Struct) error {
		var env api.Envelope
		if err := api.Decode(evt, &env); err != nil {
			return err
		}
		if jsonOut {
			outputJSON(env)
			return nil
		}
		payload, _ := json.Marshal(env.Payload)
		at := time.UnixMilli(env.OccurredAtUnixMs).Format("15:04:05.000")
		fmt.Printf("%s %-28s %s\n", at, env.Kind, payload)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fail(err)
	}
}

func cmdSessionsList(jsonOut bool) {
	names, err := session.List()
	if err != nil {
		fail(err)
	}
	type entry struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Running bool   `json:"daemonRunning"`
	}
	entries := make([]entry, 0, len(names))
	for _, n := range names {
		_, statErr := os.Stat(session.SocketPath(n))
		entries = append(entries, entry{Name: n, Path: session.Dir(n), Running: statErr == nil})
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, e := range entries {
		running := "stopped"
		if e.Running {
			running = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", e.Name, e.Path, running)
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fail(fmt.Errorf("invalid id %q", s))
	}
	return id
}

func parseOnOff(s, synopsis string) bool {
	switch s {
	case "on", "true":
		return true
	case "off", "false":
		return false
	}
	usage(synopsis)
	return false
}
