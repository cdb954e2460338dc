package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/ai-chat-assistant/internal/chat"
	"github.com/lumenchat/ai-chat-assistant/internal/common"
	"github.com/lumenchat/ai-chat-assistant/internal/httpapi/middleware"
	"github.com/lumenchat/ai-chat-assistant/internal/registry"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

type chatStreamReq struct {
	Message   string `json:"message" binding:"required"`
	ModelID   string `json:"model_id" binding:"required"`
	SessionID string `json:"session_id"`
}

// ChatStream relays one chat turn as a stream of data frames. After the
// response has started every failure becomes a terminal error frame; the
// transport status is already committed.
func (h *Handler) ChatStream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatStreamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message and model_id required")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	writeFrame := func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "data: {\"error\":\"json marshal failed\"}\n\n")
		} else {
			fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		}
		if canFlush {
			flusher.Flush()
		}
	}

	ctx := c.Request.Context()
	chunks, done, errs := h.ChatSvc.StreamTurn(ctx, uid, req.SessionID, req.ModelID, req.Message)

	for fragment := range chunks {
		writeFrame(gin.H{"content": fragment})
	}

	// the service signals exactly one terminal: done or error
	if sid, ok := <-done; ok {
		writeFrame(gin.H{"done": true, "session_id": sid})
		return
	}
	if err, ok := <-errs; ok && err != nil {
		writeFrame(gin.H{"error": streamErrorMessage(err)})
	}
}

func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, registry.ErrModelUnavailable):
		return "model config missing or disabled"
	default:
		return err.Error()
	}
}

// ChatHistory returns either one session's transcript (session_id given) or
// the caller's session list.
func (h *Handler) ChatHistory(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid)
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
			return
		}
		common.OK(c, gin.H{"sessions": sessions})
		return
	}

	tr, err := h.ChatSvc.GetTranscript(c.Request.Context(), uid, sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to load history")
		return
	}

	conversation := make([]gin.H, 0, len(tr.Messages))
	for _, m := range tr.Messages {
		conversation = append(conversation, gin.H{
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.CreatedAt,
		})
	}
	common.OK(c, gin.H{
		"conversation": conversation,
		"model_id":     tr.Session.ModelID,
		"create_time":  tr.Session.CreatedAt,
	})
}

type dateRangeReq struct {
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

func (h *Handler) ChatHistoryByDateRange(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req dateRangeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "start_time and end_time required")
		return
	}
	start, err := parseDate(req.StartTime)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid start_time")
		return
	}
	end, err := parseDate(req.EndTime)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid end_time")
		return
	}
	// a bare end date means the whole day
	if len(req.EndTime) == len("2006-01-02") {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	sessions, err := h.ChatRepo.ListSessionsByDateRange(c.Request.Context(), uid, start, end)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	if err := h.ChatSvc.DeleteSession(c.Request.Context(), uid, sessionID); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to delete session")
		return
	}
	common.OK(c, gin.H{"message": "session deleted"})
}

type sendAsyncReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// SendChatMessageAsync stores the user message, records a job and enqueues it
// for cmd/worker. The reply is fetched later via GetChatJob.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async chat disabled")
		return
	}

	var req sendAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10005, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.ChatSvc.InsertUserMessage(c.Request.Context(), uid, req.SessionID, req.Message); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		log.Printf("async insert user message failed uid=%d session_id=%s err=%v", uid, req.SessionID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		SessionID:      req.SessionID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("async create job failed uid=%d session_id=%s err=%v", uid, req.SessionID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("async publish failed uid=%d job_id=%s err=%v", uid, j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
