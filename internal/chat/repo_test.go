package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSessionPreview(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	mustSession := func(sid string) {
		t.Helper()
		if err := repo.CreateSession(ctx, &Session{SessionID: sid, UserID: 1, ModelID: "m"}); err != nil {
			t.Fatalf("create session %s: %v", sid, err)
		}
	}

	mustSession("short")
	if err := repo.InsertMessage(ctx, &Message{SessionID: "short", UserID: 1, Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	mustSession("long")
	long := strings.Repeat("a", 80)
	if err := repo.InsertMessage(ctx, &Message{SessionID: "long", UserID: 1, Role: "user", Content: long}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	mustSession("empty")
	// an assistant-only session still gets the placeholder
	mustSession("assistant-only")
	if err := repo.InsertMessage(ctx, &Message{SessionID: "assistant-only", UserID: 1, Role: "assistant", Content: "hi"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sessions, err := repo.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	byID := make(map[string]SessionSummary, len(sessions))
	for _, s := range sessions {
		byID[s.SessionID] = s
	}

	if got := byID["short"].Preview; got != "hello" {
		t.Fatalf("short preview: %q", got)
	}
	if got := byID["long"].Preview; got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("long preview: %q", got)
	}
	if got := byID["empty"].Preview; got != "New Chat" {
		t.Fatalf("empty preview: %q", got)
	}
	if got := byID["assistant-only"].Preview; got != "New Chat" {
		t.Fatalf("assistant-only preview: %q", got)
	}
}

func TestListSessionsOrderedByUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-1 * time.Minute)

	if err := db.Create(&Session{SessionID: "older", UserID: 1, ModelID: "m", CreatedAt: old, UpdatedAt: old}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&Session{SessionID: "newer", UserID: 1, ModelID: "m", CreatedAt: old, UpdatedAt: recent}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	sessions, err := repo.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "newer" {
		t.Fatalf("expected newer first, got %+v", sessions)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, &Session{SessionID: "doomed", UserID: 1, ModelID: "m"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, role := range []string{"user", "assistant"} {
		if err := repo.InsertMessage(ctx, &Message{SessionID: "doomed", UserID: 1, Role: role, Content: "x"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := repo.DeleteSession(ctx, 1, "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int64
	if err := db.Model(&Message{}).Where("session_id = ?", "doomed").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete of messages, %d left", count)
	}

	// a second delete reports not found
	if err := repo.DeleteSession(ctx, 1, "doomed"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on retry, got %v", err)
	}
}

func TestDeleteSessionRequiresOwnership(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, &Session{SessionID: "mine", UserID: 2, ModelID: "m"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeleteSession(ctx, 1, "mine"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign delete, got %v", err)
	}
	// still there for its owner
	if _, err := repo.GetOwnedSession(ctx, 2, "mine"); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
}

func TestListSessionsByDateRangeInclusive(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, sid := range []string{"day1", "day2", "day3"} {
		created := base.AddDate(0, 0, i)
		if err := db.Create(&Session{SessionID: sid, UserID: 1, ModelID: "m", CreatedAt: created, UpdatedAt: created}).Error; err != nil {
			t.Fatalf("create %s: %v", sid, err)
		}
	}

	// bounds land exactly on day1 and day2
	got, err := repo.ListSessionsByDateRange(ctx, 1, base, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make(map[string]bool, len(got))
	for _, s := range got {
		ids[s.SessionID] = true
	}
	if len(got) != 2 || !ids["day1"] || !ids["day2"] {
		t.Fatalf("expected day1+day2, got %+v", got)
	}
}

func TestCountUserMessages(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, &Session{SessionID: "s", UserID: 9, ModelID: "m"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, role := range []string{"user", "assistant", "user"} {
		if err := repo.InsertMessage(ctx, &Message{SessionID: "s", UserID: 9, Role: role, Content: "x"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := repo.CountUserMessages(ctx, 9)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 user messages, got %d", n)
	}
}
