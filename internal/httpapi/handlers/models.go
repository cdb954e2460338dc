package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/ai-chat-assistant/internal/common"
)

// ListModels returns the usable (enabled model × enabled provider) set, both
// as a flat model id list and grouped by provider name.
func (h *Handler) ListModels(c *gin.Context) {
	rows, err := h.Registry.ListUsableModels(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list models")
		return
	}

	modelIDs := make([]string, 0, len(rows))
	providers := make(map[string][]gin.H)
	for _, row := range rows {
		modelIDs = append(modelIDs, row.ModelID)
		providers[row.ProviderName] = append(providers[row.ProviderName], gin.H{
			"model_id":   row.ModelID,
			"model_name": row.ModelName,
		})
	}

	common.OK(c, gin.H{
		"models":    modelIDs,
		"providers": providers,
	})
}
