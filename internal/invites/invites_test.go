package invites

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *members.Engine, *sql.DB) {
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
	memberEngine := members.New(sugar, db)
	return New(sugar, db, memberEngine), memberEngine, db
}

func addTestUser(t *testing.T, db *sql.DB, id int64, name string) {
	t.Helper()

	_, err := db.Exec("INSERT INTO users (id, email, username, display_name, password, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, fmt.Sprintf("%s@example.com", name), name, name, []byte("secret"), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
}

func TestIsValid(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		invite models.ServerInvite
		want   bool
	}{
		{"unlimited", models.ServerInvite{MaxUses: 0, Uses: 100}, true},
		{"under limit", models.ServerInvite{MaxUses: 5, Uses: 4}, true},
		{"at limit", models.ServerInvite{MaxUses: 5, Uses: 5}, false},
		{"expired", models.ServerInvite{ExpiresAt: &past}, false},
		{"not yet expired", models.ServerInvite{ExpiresAt: &future}, true},
		{"expired and under limit", models.ServerInvite{MaxUses: 5, Uses: 0, ExpiresAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.invite, now); got != tt.want {
				t.Errorf("IsValid(%+v) = %v, want %v", tt.invite, got, tt.want)
			}
		})
	}
}

func TestRedeemAddsMember(t *testing.T) {
	engine, memberEngine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := memberEngine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	invite, err := engine.Create(ctx, server.ID, 1, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(invite.Code) != codeLength {
		t.Fatalf("code %q has length %d, want %d", invite.Code, len(invite.Code), codeLength)
	}

	redeemed, err := engine.Redeem(ctx, invite.Code, 2)
	if err != nil {
		t.Fatal(err)
	}
	if redeemed.Uses != 1 {
		t.Errorf("uses = %d, want 1", redeemed.Uses)
	}

	if err := memberEngine.RequireMember(ctx, server.ID, 2); err != nil {
		t.Fatalf("redeemer is not a member: %v", err)
	}

	// redeeming again fails on the membership, and the counter stays put
	_, err = engine.Redeem(ctx, invite.Code, 2)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("second redemption error = %v, want conflict", err)
	}
	var uses int
	if err := db.QueryRow("SELECT uses FROM server_invites WHERE id = ?", invite.ID).Scan(&uses); err != nil {
		t.Fatal(err)
	}
	if uses != 1 {
		t.Errorf("uses after failed redemption = %d, want 1", uses)
	}

	_, err = engine.Redeem(ctx, "NOSUCHCD", 2)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("unknown code error = %v, want not found", err)
	}
}

func TestRedeemNeverExceedsMaxUses(t *testing.T) {
	engine, memberEngine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	for i := int64(0); i < 8; i++ {
		addTestUser(t, db, 100+i, fmt.Sprintf("user%d", i))
	}

	server, err := memberEngine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	invite, err := engine.Create(ctx, server.ID, 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 8)

	for i := int64(0); i < 8; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := engine.Redeem(ctx, invite.Code, userID)
			results <- err
		}(100 + i)
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperrors.IsKind(err, apperrors.KindConflict):
			conflicted++
		default:
			t.Errorf("unexpected redemption error: %v", err)
		}
	}

	if succeeded != 1 {
		t.Errorf("%d redemptions succeeded, want exactly 1", succeeded)
	}
	if conflicted != 7 {
		t.Errorf("%d redemptions conflicted, want 7", conflicted)
	}

	var uses int
	if err := db.QueryRow("SELECT uses FROM server_invites WHERE id = ?", invite.ID).Scan(&uses); err != nil {
		t.Fatal(err)
	}
	if uses != 1 {
		t.Errorf("uses = %d, want 1", uses)
	}
}

func TestRedeemExpiredInvite(t *testing.T) {
	engine, memberEngine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := memberEngine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	// expired rows can't come from Create, plant one directly
	expired := time.Now().UTC().Add(-time.Hour)
	_, err = db.Exec("INSERT INTO server_invites (id, server_id, code, created_by, max_uses, uses, expires_at, created_at) VALUES (?, ?, ?, ?, 0, 0, ?, ?)",
		int64(9001), server.ID, "OLDEXPRD", int64(1), expired, expired.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.Redeem(ctx, "OLDEXPRD", 2)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("expired redemption error = %v, want conflict", err)
	}

	err = memberEngine.RequireMember(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("membership after failed redemption = %v, want not found", err)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, memberEngine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := memberEngine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.Create(ctx, server.ID, 1, -1, nil)
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("negative max uses error = %v, want invalid argument", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	_, err = engine.Create(ctx, server.ID, 1, 0, &past)
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("past expiry error = %v, want invalid argument", err)
	}

	_, err = engine.Create(ctx, server.ID, 2, 0, nil)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("non-member create error = %v, want not found", err)
	}

	// plain members hold create_invites by default
	if err := memberEngine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Create(ctx, server.ID, 2, 0, nil); err != nil {
		t.Errorf("member create error = %v, want nil", err)
	}
}

func TestListAndDeletePermissions(t *testing.T) {
	engine, memberEngine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")
	addTestUser(t, db, 3, "carol")

	server, err := memberEngine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := memberEngine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := memberEngine.JoinServer(ctx, server.ID, 3); err != nil {
		t.Fatal(err)
	}

	invite, err := engine.Create(ctx, server.ID, 2, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// listing needs manage_server
	_, err = engine.List(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("member list error = %v, want forbidden", err)
	}
	inviteList, err := engine.List(ctx, server.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(inviteList) != 1 {
		t.Errorf("got %d invites, want 1", len(inviteList))
	}

	// another plain member can't revoke someone else's invite
	err = engine.Delete(ctx, server.ID, 3, invite.Code)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("non-creator delete error = %v, want forbidden", err)
	}

	// the creator can
	if err := engine.Delete(ctx, server.ID, 2, invite.Code); err != nil {
		t.Fatal(err)
	}
	_, err = engine.Redeem(ctx, invite.Code, 3)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("redeeming a deleted invite error = %v, want not found", err)
	}
}
