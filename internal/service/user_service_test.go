package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlacklist struct {
	banned map[string]time.Duration
	err    error
}

func (m *memBlacklist) IsBlacklisted(_ context.Context, openid string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.banned[openid]
	return ok, nil
}

func (m *memBlacklist) Add(_ context.Context, openid string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.banned[openid] = ttl
	return nil
}

func TestUserServiceAuthenticate(t *testing.T) {
	bl := &memBlacklist{banned: map[string]time.Duration{"bad": time.Hour}}
	svc := service.NewUserService(bl)
	ctx := context.Background()

	assert.NoError(t, svc.Authenticate(ctx, "good"))
	assert.ErrorIs(t, svc.Authenticate(ctx, "bad"), domain.ErrBlacklisted)
	assert.ErrorIs(t, svc.Authenticate(ctx, "  "), domain.ErrInvalidArgument)

	bl.err = errors.New("redis down")
	err := svc.Authenticate(ctx, "good")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrBlacklisted)
}

func TestUserServiceRevoke(t *testing.T) {
	bl := &memBlacklist{banned: map[string]time.Duration{}}
	svc := service.NewUserService(bl)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "u1"))
	assert.Equal(t, service.RevokeTTL, bl.banned["u1"])
	assert.ErrorIs(t, svc.Authenticate(ctx, "u1"), domain.ErrBlacklisted)
	assert.ErrorIs(t, svc.Revoke(ctx, ""), domain.ErrInvalidArgument)
}

func TestUserServiceWithoutBlacklist(t *testing.T) {
	svc := service.NewUserService(nil)
	ctx := context.Background()
	assert.NoError(t, svc.Authenticate(ctx, "anyone"))
	assert.NoError(t, svc.Revoke(ctx, "anyone"))
	assert.NoError(t, svc.Authenticate(ctx, "anyone"))
}
