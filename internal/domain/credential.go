package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceCredential 设备凭证（每个 user_id + device_type 至多一条）
// 密文 EncryptedSecret 由 secrets 包加解密，任何路径都不得以明文落库或打日志
type DeviceCredential struct {
	ID              string
	UserID          string
	DeviceType      DeviceType
	AuthType        AuthType
	EncryptedSecret string
	Config          json.RawMessage // 厂家附加配置（区域标记、设备 ID 等）

	// ========== 生命周期状态 ==========
	IsValid     bool
	SyncEnabled bool
	LastSyncAt  *time.Time
	LastError   string
	ErrorCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasswordSecret 账号密码类凭证（Garmin）
type PasswordSecret struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthSecret OAuth2 类凭证（Huawei）
type OAuthSecret struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
}

// Expired 判断 access_token 是否过期（skew 为提前量）
func (s *OAuthSecret) Expired(skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(s.ExpiresAt)
}

// FileSecret 文件导入类凭证（Apple Health 导出），无密钥内容
type FileSecret struct{}

// SecretPayload 按 auth_type 区分的凭证密钥联合体
// 解码时只允许命中与 AuthType 匹配的分支，避免把 OAuth token 当密码用
type SecretPayload struct {
	Password *PasswordSecret
	OAuth    *OAuthSecret
	File     *FileSecret
}

// EncodeSecret 将密钥序列化为待加密的 JSON
func EncodeSecret(authType AuthType, payload *SecretPayload) ([]byte, error) {
	switch authType {
	case AuthPassword:
		if payload.Password == nil {
			return nil, fmt.Errorf("password secret required for auth type %s", authType)
		}
		return json.Marshal(payload.Password)
	case AuthOAuth2:
		if payload.OAuth == nil {
			return nil, fmt.Errorf("oauth secret required for auth type %s", authType)
		}
		return json.Marshal(payload.OAuth)
	case AuthFile:
		return json.Marshal(FileSecret{})
	default:
		return nil, fmt.Errorf("unknown auth type: %s", authType)
	}
}

// DecodeSecret 将解密后的 JSON 还原为对应分支
func DecodeSecret(authType AuthType, plaintext []byte) (*SecretPayload, error) {
	payload := &SecretPayload{}
	switch authType {
	case AuthPassword:
		var s PasswordSecret
		if err := json.Unmarshal(plaintext, &s); err != nil {
			return nil, fmt.Errorf("failed to decode password secret: %w", err)
		}
		payload.Password = &s
	case AuthOAuth2:
		var s OAuthSecret
		if err := json.Unmarshal(plaintext, &s); err != nil {
			return nil, fmt.Errorf("failed to decode oauth secret: %w", err)
		}
		payload.OAuth = &s
	case AuthFile:
		payload.File = &FileSecret{}
	default:
		return nil, fmt.Errorf("unknown auth type: %s", authType)
	}
	return payload, nil
}
