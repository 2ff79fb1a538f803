package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/notifications"
	"guildchat-backend/internal/relationships"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/users"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type testStack struct {
	engine        *Engine
	members       *members.Engine
	relationships *relationships.Engine
	db            *sql.DB
}

func newTestStack(t *testing.T) testStack {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	// a single connection keeps the in-memory database alive
	db.SetMaxOpenConns(1)

	if err := database.CreateTables(db); err != nil {
		t.Fatal(err)
	}
	// the worker ID sticks after the first test sets it
	_ = snowflake.Setup(1)

	sugar := zap.NewNop().Sugar()
	userStore := users.NewStore(sugar, db)
	notifyQueue := notifications.NewQueue(sugar, db, nil, true)
	memberEngine := members.New(sugar, db)
	relationshipEngine := relationships.New(sugar, db, userStore, notifyQueue)

	return testStack{
		engine:        New(sugar, db, memberEngine, relationshipEngine, notifyQueue),
		members:       memberEngine,
		relationships: relationshipEngine,
		db:            db,
	}
}

func (s testStack) addUser(t *testing.T, id int64, name string) {
	t.Helper()

	_, err := s.db.Exec("INSERT INTO users (id, email, username, display_name, password, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, fmt.Sprintf("%s@example.com", name), name, name, []byte("secret"), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
}

func (s testStack) makeFriends(t *testing.T, a int64, b int64) {
	t.Helper()

	ctx := context.Background()
	request, err := s.relationships.SendFriendRequest(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.relationships.AcceptFriendRequest(ctx, b, request.ID); err != nil {
		t.Fatal(err)
	}
}

func TestChannelMessaging(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")
	s.addUser(t, 3, "carol")

	server, err := s.members.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.members.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}

	// channel creation needs manage_channels
	_, err = s.engine.CreateChannel(ctx, server.ID, 2, "general")
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("member channel create error = %v, want forbidden", err)
	}
	channel, err := s.engine.CreateChannel(ctx, server.ID, 1, "general")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := s.engine.PostChannelMessage(ctx, channel.ID, 2, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.User.DisplayName != "bob" {
		t.Errorf("author display name = %q, want bob", msg.User.DisplayName)
	}

	// non-members can't post or read
	_, err = s.engine.PostChannelMessage(ctx, channel.ID, 3, "hi")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("non-member post error = %v, want not found", err)
	}
	_, err = s.engine.ListChannelMessages(ctx, channel.ID, 3)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("non-member list error = %v, want not found", err)
	}

	messages, err := s.engine.ListChannelMessages(ctx, channel.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Fatalf("messages = %+v, want the one greeting", messages)
	}

	_, err = s.engine.PostChannelMessage(ctx, channel.ID, 2, "")
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("empty message error = %v, want invalid argument", err)
	}
}

func TestEditMessageIsAuthorOnly(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")

	server, err := s.members.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.members.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	channel, err := s.engine.CreateChannel(ctx, server.ID, 1, "general")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := s.engine.PostChannelMessage(ctx, channel.ID, 2, "original")
	if err != nil {
		t.Fatal(err)
	}

	// even the owner can't edit someone else's message
	err = s.engine.EditMessage(ctx, msg.ID, 1, "changed")
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("owner edit error = %v, want forbidden", err)
	}

	if err := s.engine.EditMessage(ctx, msg.ID, 2, "fixed"); err != nil {
		t.Fatal(err)
	}

	messages, err := s.engine.ListChannelMessages(ctx, channel.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if messages[0].Content != "fixed" || !messages[0].Edited || messages[0].EditedAt == nil {
		t.Errorf("edited message = %+v, want content fixed with edited flag", messages[0])
	}
}

func TestDeleteMessagePermissions(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")
	s.addUser(t, 3, "carol")

	server, err := s.members.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.members.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.members.JoinServer(ctx, server.ID, 3); err != nil {
		t.Fatal(err)
	}
	channel, err := s.engine.CreateChannel(ctx, server.ID, 1, "general")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := s.engine.PostChannelMessage(ctx, channel.ID, 2, "hello")
	if err != nil {
		t.Fatal(err)
	}

	// a plain member can't delete someone else's message
	err = s.engine.DeleteMessage(ctx, msg.ID, 3)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("plain member delete error = %v, want forbidden", err)
	}

	// a moderator holds manage_messages
	moderator := models.CoarseModerator
	if err := s.members.UpdateMember(ctx, server.ID, 1, 3, members.MemberUpdate{Role: &moderator}); err != nil {
		t.Fatal(err)
	}
	if err := s.engine.DeleteMessage(ctx, msg.ID, 3); err != nil {
		t.Fatal(err)
	}

	err = s.engine.DeleteMessage(ctx, msg.ID, 3)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("double delete error = %v, want not found", err)
	}
}

func TestOpenDMRequiresFriendship(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")
	s.addUser(t, 3, "carol")

	_, err := s.engine.OpenDM(ctx, 1, 1)
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("self DM error = %v, want invalid argument", err)
	}

	_, err = s.engine.OpenDM(ctx, 1, 2)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("stranger DM error = %v, want forbidden", err)
	}

	s.makeFriends(t, 1, 2)

	dm, err := s.engine.OpenDM(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if dm.UserLow != 1 || dm.UserHigh != 2 {
		t.Errorf("pair = (%d, %d), want (1, 2)", dm.UserLow, dm.UserHigh)
	}

	// opening from the other side returns the same channel
	again, err := s.engine.OpenDM(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != dm.ID {
		t.Errorf("second open returned channel %d, want %d", again.ID, dm.ID)
	}

	// outsiders can't post into the pair's channel
	_, err = s.engine.PostDMMessage(ctx, dm.ID, 3, "hi")
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("outsider DM post error = %v, want forbidden", err)
	}

	if _, err := s.engine.PostDMMessage(ctx, dm.ID, 1, "hey"); err != nil {
		t.Fatal(err)
	}

	// an existing channel stays usable after the friendship ends
	if err := s.relationships.RemoveFriend(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.engine.PostDMMessage(ctx, dm.ID, 2, "still here"); err != nil {
		t.Fatal(err)
	}

	messages, err := s.engine.ListDMMessages(ctx, dm.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d DM messages, want 2", len(messages))
	}

	_, err = s.engine.ListDMMessages(ctx, dm.ID, 3)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("outsider DM list error = %v, want forbidden", err)
	}
}

func TestOpenDMBlockedPair(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")

	s.makeFriends(t, 1, 2)

	// friendship alone isn't enough once a block exists
	if err := s.relationships.BlockUser(ctx, 2, 1); err != nil {
		t.Fatal(err)
	}
	_, err := s.engine.OpenDM(ctx, 1, 2)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("blocked DM open error = %v, want forbidden", err)
	}
}

func TestToggleReaction(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addUser(t, 1, "alice")
	s.addUser(t, 2, "bob")

	server, err := s.members.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.members.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	channel, err := s.engine.CreateChannel(ctx, server.ID, 1, "general")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := s.engine.PostChannelMessage(ctx, channel.ID, 1, "react to this")
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.engine.ToggleReaction(ctx, msg.ID, 2, "")
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("empty emoji error = %v, want invalid argument", err)
	}

	outcome, err := s.engine.ToggleReaction(ctx, msg.ID, 2, "👍")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != "added" {
		t.Errorf("first toggle = %q, want added", outcome)
	}

	// a different emoji from the same user is a separate reaction
	if _, err := s.engine.ToggleReaction(ctx, msg.ID, 2, "🎉"); err != nil {
		t.Fatal(err)
	}

	reactions, err := s.engine.ListReactions(ctx, msg.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(reactions))
	}

	outcome, err = s.engine.ToggleReaction(ctx, msg.ID, 2, "👍")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != "removed" {
		t.Errorf("second toggle = %q, want removed", outcome)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM message_reactions WHERE message_id = ?", msg.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("got %d reaction rows, want 1", count)
	}
}
