package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"healthhub/internal/adapter"
	"healthhub/internal/domain"
	"healthhub/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDeviceService struct {
	bindReq     *service.BindRequest
	bindResult  *adapter.ConnectionResult
	syncOutcome *domain.SyncOutcome
	syncErr     error
}

func (s *stubDeviceService) ListSupportedDevices() []adapter.DeviceInfo {
	return []adapter.DeviceInfo{
		{DeviceType: domain.DeviceApple, AuthType: domain.AuthFile},
		{DeviceType: domain.DeviceGarmin, AuthType: domain.AuthPassword},
	}
}

func (s *stubDeviceService) Bind(ctx context.Context, req *service.BindRequest) (*adapter.ConnectionResult, error) {
	s.bindReq = req
	if s.bindResult != nil {
		return s.bindResult, nil
	}
	return &adapter.ConnectionResult{Success: true, Message: "ok"}, nil
}

func (s *stubDeviceService) Unbind(ctx context.Context, userID string, deviceType domain.DeviceType) error {
	if deviceType == domain.DeviceFitbit {
		return domain.ErrNotBound
	}
	return nil
}

func (s *stubDeviceService) ListBindings(ctx context.Context, userID string) ([]*service.BindingStatus, error) {
	return []*service.BindingStatus{
		{DeviceType: domain.DeviceGarmin, AuthType: domain.AuthPassword, IsValid: true, SyncEnabled: true},
	}, nil
}

func (s *stubDeviceService) SyncDeviceData(ctx context.Context, userID string, deviceType domain.DeviceType, days int) (*domain.SyncOutcome, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return s.syncOutcome, nil
}

func (s *stubDeviceService) SyncAllDevices(ctx context.Context, userID string, days int) ([]*domain.SyncOutcome, error) {
	return []*domain.SyncOutcome{s.syncOutcome}, nil
}

type stubOAuthFlow struct{}

func (stubOAuthFlow) AuthorizeURL(ctx context.Context, userID string, deviceType domain.DeviceType, redirectURI string) (string, error) {
	return "https://oauth.example.com/authorize?state=abc", nil
}

func (stubOAuthFlow) HandleCallback(ctx context.Context, state, code, redirectURI string) (string, domain.DeviceType, error) {
	if state != "good-state" {
		return "", "", domain.ErrStateMismatch
	}
	return "user-1", domain.DeviceHuawei, nil
}

type stubExporter struct{}

func (stubExporter) ExportRangeExcel(ctx context.Context, userID, startDate, endDate string) ([]byte, string, error) {
	return []byte("xlsx-bytes"), "health_data.xlsx", nil
}

func setupRouter(svc *stubDeviceService) *Router {
	h := NewDeviceHandler(svc, stubOAuthFlow{}, stubExporter{}, zap.NewNop())
	r := NewRouter(zap.NewNop())
	r.RegisterDeviceRoutes(h)
	return r
}

func doRequest(t *testing.T, r *Router, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestListDevices(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodGet, "/hub/api/v1/devices", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeResult(t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Contains(t, string(res.Result), "garmin")
}

func TestBind_PasswordDevice(t *testing.T) {
	svc := &stubDeviceService{}
	r := setupRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/devices/bind", "user-1",
		`{"device_type":"garmin","email":"u@example.com","password":"hunter2","region":"cn"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ResultSuccess, decodeResult(t, w).Code)

	require.NotNil(t, svc.bindReq)
	assert.Equal(t, domain.DeviceGarmin, svc.bindReq.DeviceType)
	require.NotNil(t, svc.bindReq.Secret.Password)
	assert.Equal(t, "hunter2", svc.bindReq.Secret.Password.Password)
	assert.Contains(t, string(svc.bindReq.Config), `"region":"cn"`)
	assert.True(t, svc.bindReq.SyncEnabled)
}

func TestBind_ProbeFailure(t *testing.T) {
	svc := &stubDeviceService{
		bindResult: &adapter.ConnectionResult{Success: false, Message: "invalid username or password"},
	}
	r := setupRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/devices/bind", "user-1",
		`{"device_type":"garmin","email":"u@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeResult(t, w)
	assert.Equal(t, ResultError, res.Code)
	assert.Contains(t, res.Message, "invalid username or password")
}

func TestBind_RequiresUserIdentity(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/devices/bind", "",
		`{"device_type":"garmin"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnbind_NotBound(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/devices/unbind", "user-1",
		`{"device_type":"fitbit"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync_SingleDevice(t *testing.T) {
	svc := &stubDeviceService{
		syncOutcome: &domain.SyncOutcome{DeviceType: domain.DeviceGarmin, SyncedDays: 3},
	}
	r := setupRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/sync", "user-1",
		`{"device_type":"garmin","days":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeResult(t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Contains(t, string(res.Result), `"synced_days":3`)
}

func TestSync_InvalidCredentialMapsToRebind(t *testing.T) {
	svc := &stubDeviceService{syncErr: domain.ErrCredentialInvalid}
	r := setupRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/sync", "user-1",
		`{"device_type":"garmin"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ResultRebindRequired, decodeResult(t, w).Code)
}

func TestSync_InProgressMapsToConflict(t *testing.T) {
	svc := &stubDeviceService{syncErr: domain.ErrSyncInProgress}
	r := setupRouter(svc)

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/sync", "user-1",
		`{"device_type":"garmin"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOAuthURL(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodGet, "/hub/api/v1/oauth/url?device_type=huawei&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcb", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeResult(t, w).Result), "authorize_url")
}

func TestOAuthCallback_BadState(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/oauth/callback", "",
		`{"state":"forged","code":"c1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOAuthCallback_Success(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodPost, "/hub/api/v1/oauth/callback", "",
		`{"state":"good-state","code":"c1","redirect_uri":"https://app.example.com/cb"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeResult(t, w).Result), "huawei")
}

func TestExportRecords(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodGet, "/hub/api/v1/records/export?start_date=2026-08-14&end_date=2026-08-20", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "health_data.xlsx")
	assert.Equal(t, "xlsx-bytes", w.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	r := setupRouter(&stubDeviceService{})

	w := doRequest(t, r, http.MethodDelete, "/hub/api/v1/sync", "user-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
