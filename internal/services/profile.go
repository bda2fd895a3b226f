package services

import (
	"context"
	"log/slog"
	"strings"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ProfileService exposes the parts of the owner profile this service owns.
// Identity and credentials live with the identity provider.
type ProfileService struct {
	users           storage.UserStore
	clock           Clock
	currencies      *cache.LRU[string]
	defaultCurrency string
}

func NewProfileService(users storage.UserStore, clock Clock, currencies *cache.LRU[string], defaultCurrency string) *ProfileService {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &ProfileService{users: users, clock: clock, currencies: currencies, defaultCurrency: defaultCurrency}
}

// Get returns the owner's profile. An owner who never chose a currency sees
// the configured default, which is not persisted.
func (s *ProfileService) Get(ctx context.Context, owner string) (core.User, error) {
	u, err := loadUser(ctx, s.users, owner, s.clock())
	if err != nil {
		return core.User{}, core.Upstream("fetch profile", err)
	}
	if u.Currency == "" {
		u.Currency = s.defaultCurrency
	}
	u.Goals = nonNil(u.Goals)
	return u, nil
}

// SetCurrency changes the default currency used for new transactions.
func (s *ProfileService) SetCurrency(ctx context.Context, owner, currency string) (core.User, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return core.User{}, core.Validation("currency must be a 3 letter code")
	}

	now := s.clock()
	u, err := loadUser(ctx, s.users, owner, now)
	if err != nil {
		return core.User{}, core.Upstream("update profile", err)
	}
	u.Currency = currency
	u.UpdatedAt = now
	if err := s.users.SaveUser(ctx, u); err != nil {
		return core.User{}, core.Upstream("update profile", err)
	}
	if s.currencies != nil {
		s.currencies.Delete(owner)
	}

	slog.InfoContext(ctx, "Profile currency updated", "user_id", owner, "currency", currency)
	u.Goals = nonNil(u.Goals)
	return u, nil
}
