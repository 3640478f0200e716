package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"healthhub/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	oauthStateKeyPrefix = "healthhub:oauth:state:"
	oauthStateTTL       = 10 * time.Minute
)

// OAuthStateStore OAuth 回调 state 的签发与校验
// state 只存 SHA-256 摘要，回调命中后立即删除（GETDEL），单次有效
type OAuthStateStore struct {
	client *redis.Client
}

// NewOAuthStateStore 创建 state 存储
func NewOAuthStateStore(client *redis.Client) *OAuthStateStore {
	return &OAuthStateStore{client: client}
}

func oauthStateKey(state string) string {
	sum := sha256.Sum256([]byte(state))
	return oauthStateKeyPrefix + hex.EncodeToString(sum[:])
}

// Issue 签发 state，并绑定发起授权的用户与设备类型
func (s *OAuthStateStore) Issue(ctx context.Context, userID string, deviceType domain.DeviceType) (string, error) {
	state := uuid.New().String()
	value := userID + "|" + string(deviceType)

	if err := s.client.Set(ctx, oauthStateKey(state), value, oauthStateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume 校验并销毁 state，返回签发时绑定的用户与设备类型
// 未命中（过期、伪造、重放）返回 domain.ErrStateMismatch
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (userID string, deviceType domain.DeviceType, err error) {
	if state == "" {
		return "", "", domain.ErrStateMismatch
	}

	value, err := s.client.GetDel(ctx, oauthStateKey(state)).Result()
	if err == redis.Nil {
		return "", "", domain.ErrStateMismatch
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to consume oauth state: %w", err)
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return "", "", domain.ErrStateMismatch
	}
	return parts[0], domain.DeviceType(parts[1]), nil
}
