package members

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
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

	return New(zap.NewNop().Sugar(), db), db
}

func addTestUser(t *testing.T, db *sql.DB, id int64, name string) {
	t.Helper()

	_, err := db.Exec("INSERT INTO users (id, email, username, display_name, password, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, fmt.Sprintf("%s@example.com", name), name, name, []byte("secret"), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateServerSeedsOwnerAndDefaultRole(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "a place")
	if err != nil {
		t.Fatal(err)
	}

	memberList, err := engine.ListMembers(ctx, server.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(memberList) != 1 {
		t.Fatalf("got %d members, want 1", len(memberList))
	}
	if memberList[0].Role != models.CoarseOwner {
		t.Errorf("creator role = %q, want %q", memberList[0].Role, models.CoarseOwner)
	}

	roles, err := engine.ListRoles(ctx, server.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 {
		t.Fatalf("got %d roles, want 1", len(roles))
	}
	if roles[0].Name != DefaultRoleName || !roles[0].IsDefault {
		t.Errorf("seeded role = %+v, want default %q", roles[0], DefaultRoleName)
	}
}

func TestJoinServerIsIdempotentConflict(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	err = engine.JoinServer(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("second join error = %v, want conflict", err)
	}

	err = engine.JoinServer(ctx, 12345, 2)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("joining unknown server error = %v, want not found", err)
	}
}

func TestNonMemberIsNotFoundNotForbidden(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.ResolvePermission(ctx, server.ID, 2, permissions.KickMembers)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("non-member resolve error = %v, want not found", err)
	}

	err = engine.RequireMember(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("non-member require error = %v, want not found", err)
	}
}

func TestKickHierarchy(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")
	addTestUser(t, db, 3, "carol")
	addTestUser(t, db, 4, "dave")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, userID := range []int64{2, 3, 4} {
		if err := engine.JoinServer(ctx, server.ID, userID); err != nil {
			t.Fatal(err)
		}
	}

	// dave becomes an admin
	adminRole := models.CoarseAdmin
	if err := engine.UpdateMember(ctx, server.ID, 1, 4, MemberUpdate{Role: &adminRole}); err != nil {
		t.Fatal(err)
	}

	// bob gets a custom role carrying kick_members
	role, err := engine.CreateRole(ctx, server.ID, 1, models.ServerRole{Name: "Mod", KickMembers: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.AssignRole(ctx, server.ID, 1, 2, role.ID); err != nil {
		t.Fatal(err)
	}

	allowed, err := engine.ResolvePermission(ctx, server.ID, 2, permissions.KickMembers)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("bob should hold kick_members through the custom role")
	}

	// carol, a plain member, can't kick
	err = engine.KickMember(ctx, server.ID, 3, 2)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("plain member kick error = %v, want forbidden", err)
	}

	// bob kicks carol
	if err := engine.KickMember(ctx, server.ID, 2, 3); err != nil {
		t.Fatal(err)
	}
	err = engine.RequireMember(ctx, server.ID, 3)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("kicked member lookup error = %v, want not found", err)
	}

	// bob can't kick an admin
	err = engine.KickMember(ctx, server.ID, 2, 4)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("kicking an admin error = %v, want forbidden", err)
	}

	// nobody kicks the owner
	err = engine.KickMember(ctx, server.ID, 2, 1)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("kicking the owner error = %v, want forbidden", err)
	}

	// the owner removes the admin
	if err := engine.KickMember(ctx, server.ID, 1, 4); err != nil {
		t.Fatal(err)
	}

	// kicking yourself is a leave, not a kick
	err = engine.KickMember(ctx, server.ID, 2, 2)
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("self kick error = %v, want invalid argument", err)
	}
}

func TestOwnerCannotLeave(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}

	err = engine.LeaveServer(ctx, server.ID, 1)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("owner leave error = %v, want forbidden", err)
	}

	if err := engine.LeaveServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}
	err = engine.RequireMember(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("left member lookup error = %v, want not found", err)
	}
}

func TestUpdateMemberOwnershipRules(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}

	owner := models.CoarseOwner
	err = engine.UpdateMember(ctx, server.ID, 1, 2, MemberUpdate{Role: &owner})
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("granting ownership error = %v, want invalid argument", err)
	}

	member := models.CoarseMember
	err = engine.UpdateMember(ctx, server.ID, 1, 1, MemberUpdate{Role: &member})
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("demoting the owner error = %v, want forbidden", err)
	}

	bad := models.CoarseRole("superuser")
	err = engine.UpdateMember(ctx, server.ID, 1, 2, MemberUpdate{Role: &bad})
	if !apperrors.IsKind(err, apperrors.KindInvalidArgument) {
		t.Errorf("unknown role error = %v, want invalid argument", err)
	}
}

func TestDefaultRoleCannotBeDeleted(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}

	roles, err := engine.ListRoles(ctx, server.ID, 1)
	if err != nil {
		t.Fatal(err)
	}

	err = engine.DeleteRole(ctx, server.ID, 1, roles[0].ID)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("deleting the default role error = %v, want conflict", err)
	}
}

func TestRoleAssignmentLifecycle(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}

	role, err := engine.CreateRole(ctx, server.ID, 1, models.ServerRole{Name: "Helper", ManageMessages: true})
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.CreateRole(ctx, server.ID, 1, models.ServerRole{Name: "Helper"})
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("duplicate role name error = %v, want conflict", err)
	}

	if err := engine.AssignRole(ctx, server.ID, 1, 2, role.ID); err != nil {
		t.Fatal(err)
	}
	err = engine.AssignRole(ctx, server.ID, 1, 2, role.ID)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Errorf("double assignment error = %v, want conflict", err)
	}

	if err := engine.UnassignRole(ctx, server.ID, 1, 2, role.ID); err != nil {
		t.Fatal(err)
	}
	err = engine.UnassignRole(ctx, server.ID, 1, 2, role.ID)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("double unassignment error = %v, want not found", err)
	}

	// deleting a role drops its assignments with it
	if err := engine.AssignRole(ctx, server.ID, 1, 2, role.ID); err != nil {
		t.Fatal(err)
	}
	if err := engine.DeleteRole(ctx, server.ID, 1, role.ID); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM member_roles WHERE role_id = ?", role.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("got %d leftover assignments, want 0", count)
	}
}

func TestDeleteServerIsOwnerOnly(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	addTestUser(t, db, 1, "alice")
	addTestUser(t, db, 2, "bob")

	server, err := engine.CreateServer(ctx, 1, "Test Server", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.JoinServer(ctx, server.ID, 2); err != nil {
		t.Fatal(err)
	}

	admin := models.CoarseAdmin
	if err := engine.UpdateMember(ctx, server.ID, 1, 2, MemberUpdate{Role: &admin}); err != nil {
		t.Fatal(err)
	}

	err = engine.DeleteServer(ctx, server.ID, 2)
	if !apperrors.IsKind(err, apperrors.KindForbidden) {
		t.Errorf("admin delete error = %v, want forbidden", err)
	}

	if err := engine.DeleteServer(ctx, server.ID, 1); err != nil {
		t.Fatal(err)
	}

	_, err = engine.GetServer(ctx, server.ID)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("deleted server lookup error = %v, want not found", err)
	}
}
