package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenchat/ai-chat-assistant/internal/ai"
	"github.com/lumenchat/ai-chat-assistant/internal/registry"
)

// Client is the upstream surface the relay drives.
type Client interface {
	ai.Completer
	ai.Streamer
}

type Service struct {
	repo              *Repo
	registry          *registry.Repo
	client            Client
	contextWindowSize int
}

func NewService(repo *Repo, reg *registry.Repo, client Client, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 10
	}
	return &Service{repo: repo, registry: reg, client: client, contextWindowSize: contextWindowSize}
}

// StreamTurn runs one chat turn end-to-end.
//
// The returned channels follow the provider convention: every delta fragment
// arrives on chunks, a terminal failure on errs, and the session id on done
// once the assistant message is committed. All three close when the turn ends.
//
// Ordering guarantees, in sequence:
//   - a supplied session id must exist and be owned by the caller before
//     anything else happens;
//   - a missing session id creates the session row up front, so a crash
//     mid-stream still leaves the session listable;
//   - the user message is committed before any outbound call, and survives
//     whatever happens after;
//   - the endpoint lookup runs after that commit, so a disabled model still
//     keeps the user's input;
//   - the accumulated assistant text is committed once the upstream stream
//     ends, including partial accumulations cut short by a transport error.
func (s *Service) StreamTurn(ctx context.Context, userID uint64, sessionID, modelID, content string) (chunks <-chan string, done <-chan string, errs <-chan error) {
	outChunks := make(chan string, 16)
	outDone := make(chan string, 1)
	outErrs := make(chan error, 1)

	go func() {
		defer close(outChunks)
		defer close(outDone)
		defer close(outErrs)

		// 1) resolve or create the session
		if sessionID != "" {
			if _, err := s.repo.GetOwnedSession(ctx, userID, sessionID); err != nil {
				outErrs <- err
				return
			}
		} else {
			sessionID = uuid.NewString()
			sess := &Session{
				SessionID: sessionID,
				UserID:    userID,
				ModelID:   modelID,
			}
			if err := s.repo.CreateSession(ctx, sess); err != nil {
				outErrs <- err
				return
			}
		}

		// 2) the user message is durable before any network call
		userMsg := &Message{
			SessionID: sessionID,
			UserID:    userID,
			Role:      "user",
			Content:   content,
		}
		if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
			outErrs <- err
			return
		}

		// 3) resolve provider credentials for the requested model
		ep, err := s.registry.ResolveEndpoint(ctx, modelID)
		if err != nil {
			outErrs <- err
			return
		}

		// 4) context window: most recent messages, oldest first
		providerMsgs, err := s.contextWindow(ctx, userID, sessionID)
		if err != nil {
			outErrs <- err
			return
		}

		// 5) stream from the provider, relaying and accumulating
		pChunks, pErrs := s.client.StreamChat(ctx, ai.Endpoint{
			BaseURL: ep.BaseURL,
			APIKey:  ep.APIKey,
			Model:   ep.ModelID,
		}, providerMsgs)

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			select {
			case outChunks <- c:
			case <-ctx.Done():
				// caller went away; the upstream call shares ctx and
				// unwinds on its own
			}
		}

		var streamErr error
		select {
		case err := <-pErrs:
			streamErr = err
		default:
		}

		reply := b.String()
		if streamErr != nil && reply == "" {
			outErrs <- streamErr
			return
		}

		// 6) commit the assistant text, partial or complete
		assistantMsg := &Message{
			SessionID: sessionID,
			UserID:    userID,
			Role:      "assistant",
			Content:   reply,
		}
		if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
			outErrs <- err
			return
		}
		if err := s.repo.TouchSession(ctx, sessionID); err != nil {
			outErrs <- err
			return
		}

		if streamErr != nil {
			outErrs <- streamErr
			return
		}
		outDone <- sessionID
	}()

	return outChunks, outDone, outErrs
}

func (s *Service) contextWindow(ctx context.Context, userID uint64, sessionID string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	providerMsgs := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		providerMsgs = append(providerMsgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	return providerMsgs, nil
}

// Transcript is a full session history plus the session's metadata.
type Transcript struct {
	Messages []Message
	Session  *Session
}

func (s *Service) GetTranscript(ctx context.Context, userID uint64, sessionID string) (*Transcript, error) {
	sess, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &Transcript{Messages: msgs, Session: sess}, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]SessionSummary, error) {
	return s.repo.ListSessions(ctx, userID)
}

func (s *Service) DeleteSession(ctx context.Context, userID uint64, sessionID string) error {
	return s.repo.DeleteSession(ctx, userID, sessionID)
}

func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) error {
	_, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	return err
}

func (s *Service) InsertUserMessage(ctx context.Context, userID uint64, sessionID string, content string) error {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.repo.InsertMessage(ctx, &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      "user",
		Content:   content,
	})
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

// GenerateAssistantReplyAndInsert runs the blocking (worker) half of a queued
// turn: the user message is already stored, so this resolves the session's
// model, calls the provider once, and commits the reply.
func (s *Service) GenerateAssistantReplyAndInsert(ctx context.Context, userID uint64, sessionID string) (string, uint64, error) {
	sess, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return "", 0, err
	}

	ep, err := s.registry.ResolveEndpoint(ctx, sess.ModelID)
	if err != nil {
		return "", 0, err
	}

	providerMsgs, err := s.contextWindow(ctx, userID, sessionID)
	if err != nil {
		return "", 0, err
	}

	reply, err := s.client.Chat(ctx, ai.Endpoint{
		BaseURL: ep.BaseURL,
		APIKey:  ep.APIKey,
		Model:   ep.ModelID,
	}, providerMsgs)
	if err != nil {
		return "", 0, err
	}

	assistantMsg := &Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      "assistant",
		Content:   reply,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return "", 0, err
	}
	if err := s.repo.TouchSession(ctx, sessionID); err != nil {
		return "", 0, err
	}
	return reply, assistantMsg.ID, nil
}
