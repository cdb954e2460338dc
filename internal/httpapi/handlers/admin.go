package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/common"
	"github.com/lumenchat/ai-chat-assistant/internal/models"
	"github.com/lumenchat/ai-chat-assistant/internal/registry"
)

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Providers

func (h *Handler) AdminListProviders(c *gin.Context) {
	providers, err := h.Registry.ListProviders(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list providers")
		return
	}
	common.OK(c, gin.H{"providers": providers})
}

type providerReq struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	Description string `json:"description"`
}

func (h *Handler) AdminCreateProvider(c *gin.Context) {
	var req providerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Name == "" || req.BaseURL == "" || req.APIKey == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name, base_url and api_key required")
		return
	}

	p := registry.Provider{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Description: req.Description,
		Status:      registry.StatusEnabled,
	}
	if err := h.Registry.CreateProvider(c.Request.Context(), &p); err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "failed to create provider")
		return
	}
	common.OK(c, gin.H{"id": p.ID})
}

// AdminUpdateProvider leaves the stored api key untouched when the request
// omits it; the secret is write-only.
func (h *Handler) AdminUpdateProvider(c *gin.Context) {
	id, okk := pathID(c, "provider_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid provider id")
		return
	}

	var req providerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name and base_url required")
		return
	}

	p := registry.Provider{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Description: req.Description,
	}
	if err := h.Registry.UpdateProvider(c.Request.Context(), id, &p); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "provider not found")
			return
		}
		common.Fail(c, http.StatusBadRequest, 10006, "failed to update provider")
		return
	}
	common.OK(c, gin.H{"message": "provider updated"})
}

func (h *Handler) AdminDeleteProvider(c *gin.Context) {
	id, okk := pathID(c, "provider_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid provider id")
		return
	}
	if err := h.Registry.DeleteProvider(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "provider not found")
			return
		}
		common.Fail(c, http.StatusBadRequest, 10006, "failed to delete provider")
		return
	}
	common.OK(c, gin.H{"message": "provider deleted"})
}

// Model configs

func (h *Handler) AdminListModels(c *gin.Context) {
	rows, err := h.Registry.ListModels(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list models")
		return
	}
	common.OK(c, gin.H{"models": rows})
}

type modelConfigReq struct {
	ProviderID  uint64 `json:"provider_id"`
	ModelID     string `json:"model_id"`
	ModelName   string `json:"model_name"`
	Description string `json:"description"`
	MaxTokens   int    `json:"max_tokens"`
	SortOrder   int    `json:"sort_order"`
}

func (r *modelConfigReq) toModel() registry.ModelConfig {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return registry.ModelConfig{
		ProviderID:  r.ProviderID,
		ModelID:     r.ModelID,
		ModelName:   r.ModelName,
		Description: r.Description,
		MaxTokens:   maxTokens,
		SortOrder:   r.SortOrder,
		Status:      registry.StatusEnabled,
	}
}

func (h *Handler) AdminCreateModel(c *gin.Context) {
	var req modelConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.ProviderID == 0 || req.ModelID == "" || req.ModelName == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "provider_id, model_id and model_name required")
		return
	}

	m := req.toModel()
	if err := h.Registry.CreateModel(c.Request.Context(), &m); err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "failed to create model config")
		return
	}
	common.OK(c, gin.H{"id": m.ID})
}

func (h *Handler) AdminUpdateModel(c *gin.Context) {
	id, okk := pathID(c, "model_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid model id")
		return
	}

	var req modelConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.ProviderID == 0 || req.ModelID == "" || req.ModelName == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "provider_id, model_id and model_name required")
		return
	}

	m := req.toModel()
	if err := h.Registry.UpdateModel(c.Request.Context(), id, &m); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "model config not found")
			return
		}
		common.Fail(c, http.StatusBadRequest, 10006, "failed to update model config")
		return
	}
	common.OK(c, gin.H{"message": "model config updated"})
}

func (h *Handler) AdminDeleteModel(c *gin.Context) {
	id, okk := pathID(c, "model_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid model id")
		return
	}
	if err := h.Registry.DeleteModel(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "model config not found")
			return
		}
		common.Fail(c, http.StatusBadRequest, 10006, "failed to delete model config")
		return
	}
	common.OK(c, gin.H{"message": "model config deleted"})
}

// Users

func (h *Handler) AdminListUsers(c *gin.Context) {
	type userRow struct {
		models.User
		MessageCount int64 `json:"message_count"`
	}
	var rows []userRow
	err := h.DB.WithContext(c.Request.Context()).
		Table("users u").
		Select("u.*, COUNT(m.id) AS message_count").
		Joins("LEFT JOIN ai_chat_messages m ON u.id = m.user_id").
		Group("u.id").
		Order("u.id").
		Find(&rows).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list users")
		return
	}
	common.OK(c, gin.H{"users": rows})
}

type updateUserReq struct {
	Status  *int `json:"status" binding:"required"`
	IsAdmin int  `json:"is_admin"`
}

func (h *Handler) AdminUpdateUser(c *gin.Context) {
	id, okk := pathID(c, "user_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}

	var req updateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": *req.Status, "is_admin": req.IsAdmin}).Error
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "failed to update user")
		return
	}
	common.OK(c, gin.H{"message": "user updated"})
}

// AdminDeleteUser removes a user and everything they own. Admins cannot
// delete their own account.
func (h *Handler) AdminDeleteUser(c *gin.Context) {
	adminID, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	id, okID := pathID(c, "user_id")
	if !okID {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}
	if id == adminID {
		common.Fail(c, http.StatusBadRequest, 10007, "cannot delete your own account")
		return
	}

	res := h.DB.WithContext(c.Request.Context()).Delete(&models.User{}, id)
	if res.Error != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "failed to delete user")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}

	// cascade: the deleted user's sessions and messages go with them
	if err := h.ChatRepo.DeleteSessionsByUser(c.Request.Context(), id); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to delete user sessions")
		return
	}
	common.OK(c, gin.H{"message": "user deleted"})
}

func (h *Handler) AdminCheck(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"message": "admin access granted", "user": user.Username})
}
