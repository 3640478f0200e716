package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterDeviceRoutes 注册设备绑定与同步路由
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.Handle("/hub/api/v1/devices", methodOnly(http.MethodGet, h.ListDevices))
	r.Handle("/hub/api/v1/devices/bind", methodOnly(http.MethodPost, h.Bind))
	r.Handle("/hub/api/v1/devices/unbind", methodOnly(http.MethodPost, h.Unbind))
	r.Handle("/hub/api/v1/devices/status", methodOnly(http.MethodGet, h.Status))

	r.Handle("/hub/api/v1/sync", methodOnly(http.MethodPost, h.Sync))

	r.Handle("/hub/api/v1/oauth/url", methodOnly(http.MethodGet, h.OAuthURL))
	r.Handle("/hub/api/v1/oauth/callback", methodOnly(http.MethodPost, h.OAuthCallback))

	r.Handle("/hub/api/v1/records/export", methodOnly(http.MethodGet, h.ExportRecords))

	r.Handle("/hub/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok("healthy"))
	})
}
