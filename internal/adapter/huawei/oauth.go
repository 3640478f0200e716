package huawei

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"healthhub/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// expirySkew access_token 过期判断提前量，避免拿着临界 token 去调数据端点
const expirySkew = 60 * time.Second

// TokenSaver 令牌持久化回调
// 厂家可能在刷新时轮换 refresh_token，新值必须覆盖存储，由编排器负责重新加密落库
type TokenSaver func(ctx context.Context, secret *domain.OAuthSecret) error

// tokenResponse 令牌端点响应
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// TokenManager Huawei OAuth2 令牌管理
// 状态机：unauthorized → pending_authorization → authorized → expired → authorized/invalid
type TokenManager struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	http         *resty.Client
	secret       *domain.OAuthSecret
	saver        TokenSaver
	logger       *zap.Logger
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(clientID, clientSecret, authURL, tokenURL string, timeout time.Duration, secret *domain.OAuthSecret, saver TokenSaver, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      authURL,
		tokenURL:     tokenURL,
		http:         resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		secret:       secret,
		saver:        saver,
		logger:       logger,
	}
}

// AuthorizeURL 生成授权跳转地址
// state 为 CSRF 令牌，由调用方签发并在回调时校验
func (m *TokenManager) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", "https://health-api.cloud.huawei.com/healthkit.sleep.read https://health-api.cloud.huawei.com/healthkit.activity.read https://health-api.cloud.huawei.com/healthkit.heartrate.read")
	q.Set("state", state)
	q.Set("access_type", "offline")
	return m.authURL + "?" + q.Encode()
}

// ExchangeCode 授权码换令牌（单次使用）
func (m *TokenManager) ExchangeCode(ctx context.Context, code, redirectURI string) (*domain.OAuthSecret, error) {
	resp, err := m.postTokenGrant(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     m.clientID,
		"client_secret": m.clientSecret,
		"redirect_uri":  redirectURI,
	})
	if err != nil {
		return nil, err
	}

	secret := tokenResponseToSecret(resp, "")
	m.secret = secret
	return secret, nil
}

// EnsureFresh 数据调用前的过期检查，过期则刷新一次
func (m *TokenManager) EnsureFresh(ctx context.Context) error {
	if m.secret == nil {
		return &domain.AuthError{DeviceType: domain.DeviceHuawei, Reason: "no oauth token held"}
	}
	if !m.secret.Expired(expirySkew) {
		return nil
	}
	return m.Refresh(ctx)
}

// Refresh 刷新访问令牌
// 厂家拒绝刷新（token 被吊销等）返回 AuthError；刷新成功后持久化新令牌
func (m *TokenManager) Refresh(ctx context.Context) error {
	if m.secret == nil || m.secret.RefreshToken == "" {
		return &domain.AuthError{DeviceType: domain.DeviceHuawei, Reason: "no refresh token held"}
	}

	resp, err := m.postTokenGrant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": m.secret.RefreshToken,
		"client_id":     m.clientID,
		"client_secret": m.clientSecret,
	})
	if err != nil {
		return err
	}

	// 厂家可能轮换 refresh_token；未返回时沿用旧值
	m.secret = tokenResponseToSecret(resp, m.secret.RefreshToken)

	if m.saver != nil {
		if err := m.saver(ctx, m.secret); err != nil {
			m.logger.Error("Failed to persist refreshed oauth token", zap.Error(err))
			return fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}

	m.logger.Info("Refreshed huawei oauth token",
		zap.Time("expires_at", m.secret.ExpiresAt),
	)
	return nil
}

// Secret 当前令牌（供适配器发起数据请求）
func (m *TokenManager) Secret() *domain.OAuthSecret {
	return m.secret
}

func (m *TokenManager) postTokenGrant(ctx context.Context, form map[string]string) (*tokenResponse, error) {
	var body tokenResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&body).
		SetError(&body).
		Post(m.tokenURL)

	if err != nil {
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "token", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		reason := body.Error
		if body.ErrorDesc != "" {
			reason = body.ErrorDesc
		}
		if reason == "" {
			reason = "token grant rejected"
		}
		return nil, &domain.AuthError{DeviceType: domain.DeviceHuawei, Reason: reason}
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "token", StatusCode: resp.StatusCode(), RateLimit: true}
	case resp.StatusCode() >= 400:
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "token", StatusCode: resp.StatusCode()}
	}

	if body.AccessToken == "" {
		return nil, &domain.AuthError{DeviceType: domain.DeviceHuawei, Reason: "token grant returned no access token"}
	}
	return &body, nil
}

func tokenResponseToSecret(resp *tokenResponse, fallbackRefresh string) *domain.OAuthSecret {
	refresh := resp.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return &domain.OAuthSecret{
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scope:        resp.Scope,
	}
}
