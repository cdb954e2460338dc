package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/ai"
	"github.com/lumenchat/ai-chat-assistant/internal/registry"
)

// fakeClient plays back scripted fragments and records what it was sent.
type fakeClient struct {
	chunks   []string
	err      error
	lastMsgs []ai.Message
	lastEp   ai.Endpoint
	calls    int
}

func (f *fakeClient) Chat(ctx context.Context, ep ai.Endpoint, messages []ai.Message) (string, error) {
	_ = ctx
	f.calls++
	f.lastEp = ep
	f.lastMsgs = append([]ai.Message(nil), messages...)
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func (f *fakeClient) StreamChat(ctx context.Context, ep ai.Endpoint, messages []ai.Message) (<-chan string, <-chan error) {
	_ = ctx
	f.calls++
	f.lastEp = ep
	f.lastMsgs = append([]ai.Message(nil), messages...)

	chunks := make(chan string, len(f.chunks)+1)
	errs := make(chan error, 1)
	for _, c := range f.chunks {
		chunks <- c
	}
	if f.err != nil {
		errs <- f.err
	}
	close(errs)
	close(chunks)
	return chunks, errs
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &Job{}, &registry.Provider{}, &registry.ModelConfig{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedModel(t *testing.T, db *gorm.DB, modelID string, providerStatus, modelStatus int) {
	t.Helper()
	p := registry.Provider{
		Name:    "acme",
		BaseURL: "https://api.acme.test/v1",
		APIKey:  "sk-test",
		Status:  providerStatus,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	m := registry.ModelConfig{
		ProviderID: p.ID,
		ModelID:    modelID,
		ModelName:  "Acme " + modelID,
		MaxTokens:  4096,
		Status:     modelStatus,
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed model: %v", err)
	}
}

// collect drains a turn's channels and returns what the caller would see.
func collect(chunks <-chan string, done <-chan string, errs <-chan error) (fragments []string, sessionID string, err error) {
	for c := range chunks {
		fragments = append(fragments, c)
	}
	if sid, ok := <-done; ok {
		return fragments, sid, nil
	}
	if e, ok := <-errs; ok {
		return fragments, "", e
	}
	return fragments, "", nil
}

func newTestService(db *gorm.DB, client Client, window int) *Service {
	return NewService(NewRepo(db), registry.NewRepo(db), client, window)
}

func TestStreamTurn_RelaysAndCommits(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	client := &fakeClient{chunks: []string{"Hel", "lo ", "world"}}
	svc := newTestService(db, client, 10)

	fragments, sid, err := collect(svc.StreamTurn(context.Background(), 1, "", "gpt-test", "hi"))
	if err != nil {
		t.Fatalf("stream turn: %v", err)
	}
	if sid == "" {
		t.Fatalf("expected session id on done")
	}
	if got := strings.Join(fragments, ""); got != "Hello world" {
		t.Fatalf("unexpected relayed text: %q", got)
	}

	var msgs []Message
	if err := db.Where("session_id = ?", sid).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hello world" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}

	if client.lastEp.BaseURL != "https://api.acme.test/v1" || client.lastEp.APIKey != "sk-test" {
		t.Fatalf("endpoint not resolved from registry: %+v", client.lastEp)
	}
}

func TestStreamTurn_NewSessionSurvivesUpstreamFailure(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	client := &fakeClient{err: errors.New("upstream exploded")}
	svc := newTestService(db, client, 10)

	fragments, _, err := collect(svc.StreamTurn(context.Background(), 7, "", "gpt-test", "hello?"))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if len(fragments) != 0 {
		t.Fatalf("expected no fragments, got %v", fragments)
	}

	// the session was created before streaming and is listable
	var sessions []Session
	if err := db.Where("user_id = ?", uint64(7)).Find(&sessions).Error; err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	// the user message is durable; no assistant message was written
	var msgs []Message
	if err := db.Where("session_id = ?", sessions[0].SessionID).Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].Content != "hello?" {
		t.Fatalf("expected only the durable user message, got %+v", msgs)
	}
}

func TestStreamTurn_PartialAccumulationIsCommitted(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	client := &fakeClient{chunks: []string{"par", "tial"}, err: errors.New("connection reset")}
	svc := newTestService(db, client, 10)

	fragments, _, err := collect(svc.StreamTurn(context.Background(), 1, "", "gpt-test", "hi"))
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if got := strings.Join(fragments, ""); got != "partial" {
		t.Fatalf("unexpected relayed text: %q", got)
	}

	var assistant Message
	if err := db.Where("role = ?", "assistant").First(&assistant).Error; err != nil {
		t.Fatalf("expected partial assistant message: %v", err)
	}
	if assistant.Content != "partial" {
		t.Fatalf("unexpected assistant content: %q", assistant.Content)
	}
}

func TestStreamTurn_DisabledModelWritesOnlyUserMessage(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-off", registry.StatusEnabled, registry.StatusDisabled)

	client := &fakeClient{chunks: []string{"nope"}}
	svc := newTestService(db, client, 10)

	_, _, err := collect(svc.StreamTurn(context.Background(), 1, "", "gpt-off", "hi"))
	if !errors.Is(err, registry.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("no upstream call should have been made")
	}

	var count int64
	if err := db.Model(&Message{}).Where("role = ?", "user").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the user message to persist, got %d rows", count)
	}
	if err := db.Model(&Message{}).Where("role = ?", "assistant").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no assistant message, got %d rows", count)
	}
}

func TestStreamTurn_UnknownSessionHasNoSideEffects(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	client := &fakeClient{chunks: []string{"x"}}
	svc := newTestService(db, client, 10)

	_, _, err := collect(svc.StreamTurn(context.Background(), 1, "no-such-session", "gpt-test", "hi"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("no upstream call should have been made")
	}

	var count int64
	if err := db.Model(&Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no messages written, got %d", count)
	}
}

func TestStreamTurn_SessionOwnershipEnforced(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	repo := NewRepo(db)
	if err := repo.CreateSession(context.Background(), &Session{
		SessionID: "owned-by-2",
		UserID:    2,
		ModelID:   "gpt-test",
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	svc := newTestService(db, &fakeClient{}, 10)
	_, _, err := collect(svc.StreamTurn(context.Background(), 1, "owned-by-2", "gpt-test", "hi"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign session, got %v", err)
	}
}

func TestStreamTurn_ContextWindow(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	repo := NewRepo(db)
	sess := &Session{SessionID: "window-session", UserID: 3, ModelID: "gpt-test"}
	if err := repo.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// 12 seeded messages; with the new user message only the last 10 go out
	for i := 0; i < 12; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := repo.InsertMessage(context.Background(), &Message{
			SessionID: sess.SessionID,
			UserID:    3,
			Role:      role,
			Content:   "seed",
		}); err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}

	client := &fakeClient{chunks: []string{"ok"}}
	svc := newTestService(db, client, 10)

	_, _, err := collect(svc.StreamTurn(context.Background(), 3, sess.SessionID, "gpt-test", "newest"))
	if err != nil {
		t.Fatalf("stream turn: %v", err)
	}

	if len(client.lastMsgs) != 10 {
		t.Fatalf("expected 10 upstream messages, got %d", len(client.lastMsgs))
	}
	last := client.lastMsgs[len(client.lastMsgs)-1]
	if last.Role != "user" || last.Content != "newest" {
		t.Fatalf("expected the new user message last, got role=%q content=%q", last.Role, last.Content)
	}
}

func TestGenerateAssistantReplyAndInsert(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "gpt-test", registry.StatusEnabled, registry.StatusEnabled)

	repo := NewRepo(db)
	sess := &Session{SessionID: "job-session", UserID: 5, ModelID: "gpt-test"}
	if err := repo.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := repo.InsertMessage(context.Background(), &Message{
		SessionID: sess.SessionID, UserID: 5, Role: "user", Content: "question",
	}); err != nil {
		t.Fatalf("insert user msg: %v", err)
	}

	client := &fakeClient{chunks: []string{"answer"}}
	svc := newTestService(db, client, 10)

	reply, msgID, err := svc.GenerateAssistantReplyAndInsert(context.Background(), 5, sess.SessionID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "answer" || msgID == 0 {
		t.Fatalf("unexpected result reply=%q id=%d", reply, msgID)
	}

	var stored Message
	if err := db.First(&stored, msgID).Error; err != nil {
		t.Fatalf("load assistant msg: %v", err)
	}
	if stored.Role != "assistant" || stored.Content != "answer" {
		t.Fatalf("unexpected stored msg: %+v", stored)
	}
}
