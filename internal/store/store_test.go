package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + indexes)", result.Version)
	}
	if result.Dirty {
		t.Error("migration left database dirty")
	}
}

func TestReplaceChatsRoundTrip(t *testing.T) {
	db := testDB(t)

	chats := []model.Chat{
		{ID: "c1", Kind: model.ChatDirect, Name: "Bob", Participant: &model.Friend{ID: 7, Username: "bob", FullName: "Bob"}, LastMessage: "hi", Timestamp: ts(100)},
		{ID: "g1", Kind: model.ChatGroup, Name: "Team", Group: &model.Group{ID: 3, Name: "Team", Members: []int64{1, 7}}, Timestamp: ts(200), UnreadCount: 2},
	}
	if err := db.ReplaceChats(chats); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chats, want 2", len(got))
	}
	if got[0].ID != "g1" || got[1].ID != "c1" {
		t.Errorf("order = [%s %s], want [g1 c1]", got[0].ID, got[1].ID)
	}
	if got[0].Group == nil || len(got[0].Group.Members) != 2 {
		t.Errorf("group not decoded: %+v", got[0].Group)
	}
	if got[1].Participant == nil || got[1].Participant.ID != 7 {
		t.Errorf("participant not decoded: %+v", got[1].Participant)
	}
	if !got[1].Timestamp.Equal(ts(100)) {
		t.Errorf("timestamp = %v, want %v", got[1].Timestamp, ts(100))
	}

	// A reload that omits c1 removes it along with its messages.
	if err := db.UpsertMessage(&model.Message{ID: 1, ChatID: "c1", Content: "x", Timestamp: ts(100)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceChats(chats[1:]); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages of removed chat = %d, want 0", len(msgs))
	}
}

func TestUpsertChatUpdates(t *testing.T) {
	db := testDB(t)

	chat := &model.Chat{ID: "c1", Kind: model.ChatDirect, Name: "Alice", Participant: &model.Friend{ID: 2}}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	chat.Name = "Alice Updated"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Name != "Alice Updated" {
		t.Errorf("chats = %+v, want one named Alice Updated", chats)
	}

	if err := db.DeleteChat("c1"); err != nil {
		t.Fatal(err)
	}
	chats, _ = db.ListChats()
	if len(chats) != 0 {
		t.Errorf("got %d chats after delete, want 0", len(chats))
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := &model.Message{ID: 42, ChatID: "c1", SenderID: 7, Content: "hello", Timestamp: ts(10)}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Content = "hello updated"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Content != "hello updated" || msgs[0].Status != model.StatusSent {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestUpsertRejectsPlaceholder(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&model.Message{ClientID: "tmp", ChatID: "c1"}); err == nil {
		t.Fatal("expected error for unconfirmed message")
	}
}

func TestListMessagesNewestWindowAscending(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 5; i++ {
		if err := db.UpsertMessage(&model.Message{ID: i, ChatID: "c1", Content: "m", Timestamp: ts(i)}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d, want 3", len(msgs))
	}
	for i, want := range []int64{3, 4, 5} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %d, want %d", i, msgs[i].ID, want)
		}
	}
}

func TestReplaceChatMessagesSkipsPlaceholders(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&model.Message{ID: 1, ChatID: "c1", Content: "old"}); err != nil {
		t.Fatal(err)
	}
	err := db.ReplaceChatMessages("c1", []model.Message{
		{ID: 2, ChatID: "c1", Content: "new", Timestamp: ts(2)},
		{ClientID: "tmp", ChatID: "c1", Content: "pending", Status: model.StatusSending},
	})
	if err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages("c1", 0)
	if len(msgs) != 1 || msgs[0].ID != 2 {
		t.Errorf("messages = %+v, want only id 2", msgs)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	for _, m := range []model.Message{
		{ID: 1, ChatID: "c1", Content: "hello world", Timestamp: ts(1)},
		{ID: 2, ChatID: "c1", Content: "goodbye world", Timestamp: ts(2)},
		{ID: 3, ChatID: "c2", Content: "Hello again", Timestamp: ts(3)},
		{ID: 4, ChatID: "c2", Content: "100% sure", Timestamp: ts(4)},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query, chat string
		want        []int64
	}{
		{"hello", "", []int64{3, 1}},
		{"hello", "c1", []int64{1}},
		{"world", "", []int64{2, 1}},
		{"%", "", []int64{4}},
		{"missing", "", nil},
	}
	for _, tt := range tests {
		results, err := db.SearchMessages(tt.query, tt.chat, 10)
		if err != nil {
			t.Fatalf("SearchMessages(%q) error = %v", tt.query, err)
		}
		if len(results) != len(tt.want) {
			t.Errorf("SearchMessages(%q, %q) = %d results, want %d", tt.query, tt.chat, len(results), len(tt.want))
			continue
		}
		for i, id := range tt.want {
			if results[i].Message.ID != id {
				t.Errorf("SearchMessages(%q)[%d] = %d, want %d", tt.query, i, results[i].Message.ID, id)
			}
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("say hello there", "HELLO", 32); got != "say <<hello>> there" {
		t.Errorf("snippet = %q", got)
	}
	if got := snippet("aaaaaaaaaa needle bbbbbbbbbb", "needle", 3); got != "...aa <<needle>> bb..." {
		t.Errorf("trimmed snippet = %q", got)
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("client1", "c1", "test msg"); err != nil {
		t.Fatal(err)
	}
	pending, err := db.UndeliveredOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientID != "client1" || pending[0].Status != OutboxQueued {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkOutboxFailed("client1", "boom"); err != nil {
		t.Fatal(err)
	}
	e, err := db.GetOutbox("client1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxFailed || e.ErrorMessage != "boom" {
		t.Errorf("entry = %+v, want failed/boom", e)
	}

	// Retry re-queues the same client id.
	if err := db.QueueOutbox("client1", "c1", "test msg"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1", 42); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.UndeliveredOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d undelivered after sent, want 0", len(pending))
	}
	e, _ = db.GetOutbox("client1")
	if e.ServerMsgID != 42 {
		t.Errorf("server id = %d, want 42", e.ServerMsgID)
	}

	if err := db.DeleteOutbox("client1"); err != nil {
		t.Fatal(err)
	}
	if e, _ := db.GetOutbox("client1"); e != nil {
		t.Errorf("entry still present after delete: %+v", e)
	}
}

func TestFriendsAndGroups(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceFriends([]model.Friend{{ID: 7, Username: "bob", Status: model.Online}, {ID: 3, Username: "amy"}}); err != nil {
		t.Fatal(err)
	}
	friends, err := db.ListFriends()
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 2 || friends[0].ID != 3 || friends[0].Status != model.Offline || friends[1].Status != model.Online {
		t.Errorf("friends = %+v", friends)
	}

	if err := db.ReplaceGroups([]model.Group{{ID: 1, Name: "Team", Members: []int64{3, 7}, CreatedBy: 3}}); err != nil {
		t.Fatal(err)
	}
	groups, err := db.ListGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 || groups[0].CreatedBy != 3 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.GetSyncState("selected_chat"); err != nil || ok {
		t.Fatalf("GetSyncState on empty = ok %v err %v", ok, err)
	}
	if err := db.SetSyncState("selected_chat", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState("selected_chat", "c2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetSyncState("selected_chat")
	if err != nil || !ok || v != "c2" {
		t.Errorf("GetSyncState = %q %v %v, want c2", v, ok, err)
	}
}
