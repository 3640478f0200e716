package service

import (
	"context"
	"fmt"

	"healthhub/internal/adapter/huawei"
	"healthhub/internal/config"
	"healthhub/internal/domain"
	"healthhub/internal/repository"
	"healthhub/internal/secrets"

	"go.uber.org/zap"
)

// OAuthService OAuth2 授权流程编排（目前仅 Huawei）
//
// 流程：AuthorizeURL 签发 state 并下发跳转地址 →
// 用户在厂家页面授权 → 回调携带 code+state →
// HandleCallback 校验 state、换取令牌、加密落库为设备凭证
type OAuthService struct {
	states *OAuthStateStore
	creds  repository.CredentialRepository
	vendor *config.VendorConfig
	logger *zap.Logger
}

// NewOAuthService 创建 OAuth 流程服务
func NewOAuthService(states *OAuthStateStore, creds repository.CredentialRepository, vendor *config.VendorConfig, logger *zap.Logger) *OAuthService {
	return &OAuthService{states: states, creds: creds, vendor: vendor, logger: logger}
}

func (s *OAuthService) tokenManager() *huawei.TokenManager {
	hw := s.vendor.Huawei
	return huawei.NewTokenManager(hw.ClientID, hw.ClientSecret, hw.AuthURL, hw.TokenURL, hw.Timeout, nil, nil, s.logger)
}

// AuthorizeURL 签发 state 并生成厂家授权跳转地址
func (s *OAuthService) AuthorizeURL(ctx context.Context, userID string, deviceType domain.DeviceType, redirectURI string) (string, error) {
	if deviceType != domain.DeviceHuawei {
		return "", fmt.Errorf("oauth flow not supported for device type: %s", deviceType)
	}

	state, err := s.states.Issue(ctx, userID, deviceType)
	if err != nil {
		return "", err
	}
	return s.tokenManager().AuthorizeURL(redirectURI, state), nil
}

// HandleCallback 处理授权回调：校验 state、授权码换令牌、绑定凭证
// state 未命中返回 domain.ErrStateMismatch
func (s *OAuthService) HandleCallback(ctx context.Context, state, code, redirectURI string) (string, domain.DeviceType, error) {
	userID, deviceType, err := s.states.Consume(ctx, state)
	if err != nil {
		return "", "", err
	}

	secret, err := s.tokenManager().ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return "", "", err
	}

	plaintext, err := domain.EncodeSecret(domain.AuthOAuth2, &domain.SecretPayload{OAuth: secret})
	if err != nil {
		return "", "", err
	}
	encrypted, err := secrets.Encrypt(plaintext)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt oauth credential: %w", err)
	}

	cred := &domain.DeviceCredential{
		UserID:          userID,
		DeviceType:      deviceType,
		AuthType:        domain.AuthOAuth2,
		EncryptedSecret: encrypted,
		SyncEnabled:     true,
	}
	if err := s.creds.Upsert(ctx, cred); err != nil {
		return "", "", err
	}

	s.logger.Info("OAuth device bound",
		zap.String("user_id", userID),
		zap.String("device_type", string(deviceType)),
	)
	return userID, deviceType, nil
}
