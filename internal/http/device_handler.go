package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"healthhub/internal/adapter"
	"healthhub/internal/domain"
	"healthhub/internal/service"

	"go.uber.org/zap"
)

// DeviceService 编排器能力（便于测试替换）
type DeviceService interface {
	ListSupportedDevices() []adapter.DeviceInfo
	Bind(ctx context.Context, req *service.BindRequest) (*adapter.ConnectionResult, error)
	Unbind(ctx context.Context, userID string, deviceType domain.DeviceType) error
	ListBindings(ctx context.Context, userID string) ([]*service.BindingStatus, error)
	SyncDeviceData(ctx context.Context, userID string, deviceType domain.DeviceType, days int) (*domain.SyncOutcome, error)
	SyncAllDevices(ctx context.Context, userID string, days int) ([]*domain.SyncOutcome, error)
}

// OAuthFlow OAuth 授权流程能力
type OAuthFlow interface {
	AuthorizeURL(ctx context.Context, userID string, deviceType domain.DeviceType, redirectURI string) (string, error)
	HandleCallback(ctx context.Context, state, code, redirectURI string) (string, domain.DeviceType, error)
}

// Exporter 记录导出能力
type Exporter interface {
	ExportRangeExcel(ctx context.Context, userID string, startDate, endDate string) ([]byte, string, error)
}

// DeviceHandler 设备绑定与同步 API
type DeviceHandler struct {
	devices DeviceService
	oauth   OAuthFlow
	export  Exporter
	logger  *zap.Logger
}

// NewDeviceHandler 创建设备 API 处理器
func NewDeviceHandler(devices DeviceService, oauth OAuthFlow, export Exporter, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, oauth: oauth, export: export, logger: logger}
}

// writeServiceError 把错误分级映射为响应码
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotBound):
		writeJSON(w, http.StatusNotFound, Fail("device not bound"))
	case errors.Is(err, domain.ErrCredentialInvalid):
		writeJSON(w, http.StatusUnauthorized, FailCode(ResultRebindRequired, err.Error()))
	case errors.Is(err, domain.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, domain.ErrStateMismatch):
		writeJSON(w, http.StatusForbidden, Fail(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	}
}

// ========== 设备管理 ==========

// ListDevices GET /hub/api/v1/devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.devices.ListSupportedDevices()))
}

type bindRequest struct {
	DeviceType string `json:"device_type"`
	// password 类（Garmin）
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Region   string `json:"region,omitempty"`
	// file 类（Apple Health 导出）
	ExportPath string `json:"export_path,omitempty"`

	SyncEnabled *bool `json:"sync_enabled,omitempty"`
}

// Bind POST /hub/api/v1/devices/bind
// OAuth2 设备不走这里，走 /oauth/url + /oauth/callback
func (h *DeviceHandler) Bind(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	var req bindRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.DeviceType == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_type is required"))
		return
	}

	syncEnabled := true
	if req.SyncEnabled != nil {
		syncEnabled = *req.SyncEnabled
	}

	secret := &domain.SecretPayload{File: &domain.FileSecret{}}
	if req.Password != "" {
		secret.Password = &domain.PasswordSecret{Email: req.Email, Password: req.Password}
	}

	var cfg json.RawMessage
	switch {
	case req.Region != "":
		cfg, _ = json.Marshal(map[string]string{"region": req.Region})
	case req.ExportPath != "":
		cfg, _ = json.Marshal(map[string]string{"export_path": req.ExportPath})
	}

	result, err := h.devices.Bind(r.Context(), &service.BindRequest{
		UserID:      userID,
		DeviceType:  domain.DeviceType(req.DeviceType),
		Secret:      secret,
		Config:      cfg,
		SyncEnabled: syncEnabled,
	})
	if err != nil {
		h.logger.Warn("Bind failed",
			zap.String("user_id", userID),
			zap.String("device_type", req.DeviceType),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusOK, FailCode(ResultError, result.Message))
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

type unbindRequest struct {
	DeviceType string `json:"device_type"`
}

// Unbind POST /hub/api/v1/devices/unbind
func (h *DeviceHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	var req unbindRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil || req.DeviceType == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_type is required"))
		return
	}

	if err := h.devices.Unbind(r.Context(), userID, domain.DeviceType(req.DeviceType)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("unbound"))
}

// Status GET /hub/api/v1/devices/status
func (h *DeviceHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	statuses, err := h.devices.ListBindings(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(statuses))
}

// ========== 同步 ==========

type syncRequest struct {
	DeviceType string `json:"device_type"` // 具体类型或 "all"
	Days       int    `json:"days"`
}

// Sync POST /hub/api/v1/sync
func (h *DeviceHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	var req syncRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil || req.DeviceType == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_type is required"))
		return
	}
	if req.Days <= 0 {
		req.Days = 1
	}

	if req.DeviceType == "all" {
		outcomes, err := h.devices.SyncAllDevices(r.Context(), userID, req.Days)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(outcomes))
		return
	}

	outcome, err := h.devices.SyncDeviceData(r.Context(), userID, domain.DeviceType(req.DeviceType), req.Days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(outcome))
}

// ========== OAuth ==========

// OAuthURL GET /hub/api/v1/oauth/url?device_type=huawei&redirect_uri=...
func (h *DeviceHandler) OAuthURL(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	deviceType := r.URL.Query().Get("device_type")
	redirectURI := r.URL.Query().Get("redirect_uri")
	if deviceType == "" || redirectURI == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_type and redirect_uri are required"))
		return
	}

	url, err := h.oauth.AuthorizeURL(r.Context(), userID, domain.DeviceType(deviceType), redirectURI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"authorize_url": url}))
}

type oauthCallbackRequest struct {
	State       string `json:"state"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// OAuthCallback POST /hub/api/v1/oauth/callback
// 身份来自 state 签发时的绑定，不依赖请求头
func (h *DeviceHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req oauthCallbackRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil || req.State == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, Fail("state and code are required"))
		return
	}

	userID, deviceType, err := h.oauth.HandleCallback(r.Context(), req.State, req.Code, req.RedirectURI)
	if err != nil {
		h.logger.Warn("OAuth callback failed", zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{
		"user_id":     userID,
		"device_type": string(deviceType),
	}))
}

// ========== 导出 ==========

// ExportRecords GET /hub/api/v1/records/export?start_date=...&end_date=...
func (h *DeviceHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing user identity"))
		return
	}

	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	if startDate == "" || endDate == "" {
		writeJSON(w, http.StatusBadRequest, Fail("start_date and end_date are required"))
		return
	}

	data, filename, err := h.export.ExportRangeExcel(r.Context(), userID, startDate, endDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
