package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/auth"
	"github.com/lumenchat/ai-chat-assistant/internal/common"
	"github.com/lumenchat/ai-chat-assistant/internal/httpapi/middleware"
	"github.com/lumenchat/ai-chat-assistant/internal/models"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		return
	}

	var cnt int64
	if err := h.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&cnt).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusBadRequest, 10003, "username already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Status:       models.StatusEnabled,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user")
		return
	}

	common.OK(c, gin.H{"id": user.ID, "username": user.Username})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		return
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid username or password")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid username or password")
		return
	}
	if user.Status != models.StatusEnabled {
		common.Fail(c, http.StatusForbidden, 40302, "account disabled")
		return
	}

	now := time.Now()
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	maxAge := int((time.Duration(h.Cfg.TokenTTLH) * time.Hour).Seconds())
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", false, true)

	common.OK(c, gin.H{"user_id": user.ID, "token": token})
}

func (h *Handler) Logout(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	if token != "" {
		if err := h.Tokens.Revoke(token); err != nil {
			common.Fail(c, http.StatusInternalServerError, 20004, "failed to revoke token")
			return
		}
	}
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", false, true)
	common.OK(c, gin.H{"message": "logged out"})
}

var avatarPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
}

// defaultAvatar renders the username's initial on a name-hashed palette color
// and returns it as a data URL.
func defaultAvatar(username string) string {
	initial := "U"
	if username != "" {
		initial = strings.ToUpper(string([]rune(username)[0]))
	}
	fh := fnv.New32a()
	fh.Write([]byte(username))
	bg := avatarPalette[int(fh.Sum32())%len(avatarPalette)]

	svg := fmt.Sprintf(`<svg width="40" height="40" xmlns="http://www.w3.org/2000/svg">`+
		`<circle cx="20" cy="20" r="20" fill="%s"/>`+
		`<text x="20" y="26" font-family="Arial, sans-serif" font-size="16" font-weight="bold" `+
		`text-anchor="middle" fill="white">%s</text></svg>`, bg, initial)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func (h *Handler) UserInfo(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	count, err := h.ChatRepo.CountUserMessages(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	avatar := user.Avatar
	if avatar == "" {
		avatar = defaultAvatar(user.Username)
	}

	common.OK(c, gin.H{
		"username":      user.Username,
		"message_count": count,
		"avatar":        avatar,
	})
}

const maxAvatarBytes = 2 * 1024 * 1024

func (h *Handler) UploadAvatar(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "file required")
		return
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		common.Fail(c, http.StatusBadRequest, 10011, "only image files are supported")
		return
	}
	if file.Size > maxAvatarBytes {
		common.Fail(c, http.StatusBadRequest, 10012, "file must not exceed 2MB")
		return
	}

	if err := os.MkdirAll(h.Cfg.AvatarDir, 0o755); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20010, "failed to store avatar")
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(file.Filename), ".")
	if ext == "" {
		ext = "jpg"
	}
	name := fmt.Sprintf("avatar_%d_%s.%s", uid, uuid.NewString()[:8], ext)
	if err := c.SaveUploadedFile(file, filepath.Join(h.Cfg.AvatarDir, name)); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20010, "failed to store avatar")
		return
	}

	avatarURL := "/static/img/" + name
	if err := h.DB.Model(&models.User{}).Where("id = ?", uid).Update("avatar", avatarURL).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"avatar": avatarURL})
}
