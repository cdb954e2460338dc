package registry

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrModelUnavailable means the model id does not resolve to an enabled model
// config with an enabled parent provider. Chat must not contact any endpoint.
var ErrModelUnavailable = errors.New("registry: model unavailable")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ResolveEndpoint maps a caller-supplied model id to the provider endpoint to
// call. Both the model config and its provider must be enabled.
func (r *Repo) ResolveEndpoint(ctx context.Context, modelID string) (*Endpoint, error) {
	var ep Endpoint
	err := r.db.WithContext(ctx).
		Table("model_configs mc").
		Select("ap.base_url AS base_url, ap.api_key AS api_key, mc.model_id AS model_id, mc.max_tokens AS max_tokens").
		Joins("JOIN api_providers ap ON mc.provider_id = ap.id").
		Where("mc.model_id = ? AND mc.status = ? AND ap.status = ?", modelID, StatusEnabled, StatusEnabled).
		Take(&ep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModelUnavailable
		}
		return nil, err
	}
	return &ep, nil
}

// ListUsableModels returns enabled models joined to enabled providers, ordered
// by provider name then sort order, for the chat model picker.
func (r *Repo) ListUsableModels(ctx context.Context) ([]UsableModel, error) {
	var rows []UsableModel
	err := r.db.WithContext(ctx).
		Table("model_configs mc").
		Select("mc.model_id AS model_id, mc.model_name AS model_name, ap.name AS provider_name").
		Joins("JOIN api_providers ap ON mc.provider_id = ap.id").
		Where("mc.status = ? AND ap.status = ?", StatusEnabled, StatusEnabled).
		Order("ap.name, mc.sort_order, mc.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Provider CRUD

func (r *Repo) ListProviders(ctx context.Context) ([]Provider, error) {
	var ps []Provider
	if err := r.db.WithContext(ctx).Order("id").Find(&ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *Repo) CreateProvider(ctx context.Context, p *Provider) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// UpdateProvider overwrites the provider's fields; the api key is write-only
// and an empty key leaves the stored secret untouched.
func (r *Repo) UpdateProvider(ctx context.Context, id uint64, p *Provider) error {
	updates := map[string]any{
		"name":        p.Name,
		"base_url":    p.BaseURL,
		"description": p.Description,
	}
	if p.APIKey != "" {
		updates["api_key"] = p.APIKey
	}
	var existing Provider
	if err := r.db.WithContext(ctx).Take(&existing, id).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Provider{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repo) DeleteProvider(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&Provider{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ModelConfig CRUD

type ModelRow struct {
	ModelConfig
	ProviderName string `json:"provider_name"`
}

// ListModels returns every model config (enabled or not) with its provider
// name, for the admin listing.
func (r *Repo) ListModels(ctx context.Context) ([]ModelRow, error) {
	var rows []ModelRow
	err := r.db.WithContext(ctx).
		Table("model_configs mc").
		Select("mc.*, ap.name AS provider_name").
		Joins("JOIN api_providers ap ON mc.provider_id = ap.id").
		Order("mc.sort_order, mc.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) CreateModel(ctx context.Context, m *ModelConfig) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) UpdateModel(ctx context.Context, id uint64, m *ModelConfig) error {
	var existing ModelConfig
	if err := r.db.WithContext(ctx).Take(&existing, id).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&ModelConfig{}).Where("id = ?", id).Updates(map[string]any{
		"provider_id": m.ProviderID,
		"model_id":    m.ModelID,
		"model_name":  m.ModelName,
		"description": m.Description,
		"max_tokens":  m.MaxTokens,
		"sort_order":  m.SortOrder,
	}).Error
}

func (r *Repo) DeleteModel(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&ModelConfig{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
