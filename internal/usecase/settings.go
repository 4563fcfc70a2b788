package usecase

import (
	"context"

	"jarvis/internal/domain"
)

// SettingsResolver computes the effective chat settings of a user:
// configured defaults, then stored global overrides, then the user's own.
type SettingsResolver struct {
	defaults domain.ChatSettings
	store    domain.ConfigStore // optional, nil = defaults only
}

// NewSettingsResolver creates a resolver over the given defaults.
func NewSettingsResolver(defaults domain.ChatSettings, store domain.ConfigStore) *SettingsResolver {
	return &SettingsResolver{defaults: defaults, store: store}
}

// Defaults returns the configured defaults.
func (r *SettingsResolver) Defaults() domain.ChatSettings { return r.defaults }

// Resolve returns the effective settings for userID.
func (r *SettingsResolver) Resolve(ctx context.Context, userID int64) (domain.ChatSettings, error) {
	s := r.defaults
	if r.store == nil {
		return s, nil
	}
	global, err := r.store.GetGlobalConfig(ctx)
	if err != nil {
		return s, domain.WrapOp("SettingsResolver.global", err)
	}
	user, err := r.store.GetUserConfig(ctx, userID)
	if err != nil {
		return s, domain.WrapOp("SettingsResolver.user", err)
	}
	return user.Apply(global.Apply(s)), nil
}

// ValidateOverrides rejects negative windows and step budgets and empty models.
func ValidateOverrides(o domain.ConfigOverrides) error {
	switch {
	case o.HistoryWindow != nil && *o.HistoryWindow < 0:
		return domain.NewDomainError("ValidateOverrides", domain.ErrInvalidInput, "history_window must be >= 0")
	case o.MaxToolSteps != nil && *o.MaxToolSteps < 0:
		return domain.NewDomainError("ValidateOverrides", domain.ErrInvalidInput, "max_tool_steps must be >= 0")
	case o.Model != nil && *o.Model == "":
		return domain.NewDomainError("ValidateOverrides", domain.ErrInvalidInput, "model_name must not be empty")
	}
	return nil
}
