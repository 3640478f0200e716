package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"healthhub/internal/config"
	"healthhub/internal/domain"
	"healthhub/internal/secrets"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupOAuthService(t *testing.T, tokenURL string) (*OAuthService, *fakeCredRepo) {
	t.Helper()
	require.NoError(t, secrets.Init("test-app-secret"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	vendor := &config.VendorConfig{}
	vendor.Huawei.ClientID = "client-1"
	vendor.Huawei.ClientSecret = "secret-1"
	vendor.Huawei.AuthURL = "https://oauth.example.com/authorize"
	vendor.Huawei.TokenURL = tokenURL
	vendor.Huawei.Timeout = 5 * time.Second

	creds := newFakeCredRepo()
	return NewOAuthService(NewOAuthStateStore(client), creds, vendor, zap.NewNop()), creds
}

func TestOAuthFlow_AuthorizeURLCarriesState(t *testing.T) {
	svc, _ := setupOAuthService(t, "https://oauth.example.com/token")

	url, err := svc.AuthorizeURL(context.Background(), "user-1", domain.DeviceHuawei, "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Contains(t, url, "client_id=client-1")
	assert.Contains(t, url, "state=")
	assert.Contains(t, url, "response_type=code")
}

func TestOAuthFlow_UnsupportedDevice(t *testing.T) {
	svc, _ := setupOAuthService(t, "https://oauth.example.com/token")

	_, err := svc.AuthorizeURL(context.Background(), "user-1", domain.DeviceGarmin, "https://app.example.com/cb")
	assert.Error(t, err)
}

func TestOAuthFlow_CallbackBindsCredential(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "auth-code-1", r.FormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"scope":"healthkit"}`))
	}))
	defer tokenSrv.Close()

	svc, creds := setupOAuthService(t, tokenSrv.URL)
	ctx := context.Background()

	// 从授权地址里取出下发的 state
	state, err := svc.states.Issue(ctx, "user-1", domain.DeviceHuawei)
	require.NoError(t, err)

	userID, deviceType, err := svc.HandleCallback(ctx, state, "auth-code-1", "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, domain.DeviceHuawei, deviceType)

	cred, err := creds.GetByUserAndType(ctx, "user-1", domain.DeviceHuawei)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthOAuth2, cred.AuthType)
	assert.True(t, cred.IsValid)
	assert.NotContains(t, cred.EncryptedSecret, "at-1")

	plaintext, err := secrets.Decrypt(cred.EncryptedSecret)
	require.NoError(t, err)
	payload, err := domain.DecodeSecret(domain.AuthOAuth2, plaintext)
	require.NoError(t, err)
	assert.Equal(t, "at-1", payload.OAuth.AccessToken)
	assert.Equal(t, "rt-1", payload.OAuth.RefreshToken)
}

func TestOAuthFlow_CallbackRejectsBadState(t *testing.T) {
	svc, creds := setupOAuthService(t, "https://oauth.example.com/token")

	_, _, err := svc.HandleCallback(context.Background(), "forged", "code", "https://app.example.com/cb")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)

	_, err = creds.GetByUserAndType(context.Background(), "user-1", domain.DeviceHuawei)
	assert.ErrorIs(t, err, domain.ErrNotBound)
}
