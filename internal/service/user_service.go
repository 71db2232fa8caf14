package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

// RevokeTTL is how long a revoked openid stays blacklisted.
const RevokeTTL = 7 * 24 * time.Hour

// UserService checks caller identities. Without a blacklist store every
// non-empty openid is accepted.
type UserService struct {
	blacklist IBlacklistRepository
}

// NewUserService creates a new UserService. blacklist may be nil.
func NewUserService(blacklist IBlacklistRepository) *UserService {
	return &UserService{blacklist: blacklist}
}

// Authenticate accepts openid unless it is empty or revoked.
func (s *UserService) Authenticate(ctx context.Context, openid string) error {
	if strings.TrimSpace(openid) == "" {
		return fmt.Errorf("%w: empty openid", domain.ErrInvalidArgument)
	}
	if s.blacklist == nil {
		return nil
	}
	banned, err := s.blacklist.IsBlacklisted(ctx, openid)
	if err != nil {
		return fmt.Errorf("check blacklist: %w", err)
	}
	if banned {
		return domain.ErrBlacklisted
	}
	return nil
}

// Revoke blacklists openid for RevokeTTL.
func (s *UserService) Revoke(ctx context.Context, openid string) error {
	if strings.TrimSpace(openid) == "" {
		return fmt.Errorf("%w: empty openid", domain.ErrInvalidArgument)
	}
	if s.blacklist == nil {
		return nil
	}
	if err := s.blacklist.Add(ctx, openid, RevokeTTL); err != nil {
		return fmt.Errorf("revoke openid: %w", err)
	}
	return nil
}
