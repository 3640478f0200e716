package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"healthhub/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client Garmin Connect 非公开 API 客户端
// 账号密码登录换取会话 Cookie，之后的数据端点都走同一会话
type Client struct {
	http     *resty.Client
	logger   *zap.Logger
	email    string
	password string
	loggedIn bool
}

// NewClient 创建 Garmin 客户端
func NewClient(baseURL string, timeout time.Duration, email, password string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; healthhub/1.0)").
		SetHeader("NK", "NT") // Garmin 数据端点要求的固定头，缺失会返回 403

	return &Client{
		http:     httpClient,
		logger:   logger,
		email:    email,
		password: password,
	}
}

// Login 登录并建立会话
// 账号密码被拒返回 AuthError，网络类失败返回 TransportError
func (c *Client) Login(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": c.email,
			"password": c.password,
			"embed":    "false",
		}).
		Post("/sso/signin")

	if err != nil {
		return &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: "login", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return &domain.AuthError{DeviceType: domain.DeviceGarmin, Reason: "invalid email or password"}
	case resp.StatusCode() == http.StatusTooManyRequests:
		return &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: "login", StatusCode: resp.StatusCode(), RateLimit: true}
	case resp.StatusCode() >= 400:
		return &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: "login", StatusCode: resp.StatusCode()}
	}

	c.loggedIn = true
	return nil
}

// getJSON 调用数据端点并解码为动态结构
// 厂家载荷形状不稳定，这里只负责拿到 JSON，字段提取交给 normalizer
func (c *Client) getJSON(ctx context.Context, op, path string, params map[string]string) (any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)

	if err != nil {
		return nil, &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		// 会话过期也走这里，编排器会按认证失败处理
		c.loggedIn = false
		return nil, &domain.AuthError{DeviceType: domain.DeviceGarmin, Reason: fmt.Sprintf("session rejected on %s", op)}
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: op, StatusCode: resp.StatusCode(), RateLimit: true}
	case resp.StatusCode() == http.StatusNoContent || resp.StatusCode() == http.StatusNotFound:
		// 当天无数据
		return nil, nil
	case resp.StatusCode() >= 400:
		return nil, &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: op, StatusCode: resp.StatusCode()}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &domain.ParseError{DeviceType: domain.DeviceGarmin, Endpoint: op, Reason: "response is not valid JSON"}
	}
	return decoded, nil
}

// GetDailySummary 每日汇总端点（步数、距离、卡路里、静息心率等兜底字段）
func (c *Client) GetDailySummary(ctx context.Context, date string) (any, error) {
	return c.getJSON(ctx, "daily-summary", "/proxy/usersummary-service/usersummary/daily", map[string]string{
		"calendarDate": date,
	})
}

// GetSleepData 睡眠端点
func (c *Client) GetSleepData(ctx context.Context, date string) (any, error) {
	return c.getJSON(ctx, "sleep", "/proxy/wellness-service/wellness/dailySleepData", map[string]string{
		"date":                 date,
		"nonSleepBufferMinutes": "60",
	})
}

// GetHeartRate 心率端点
func (c *Client) GetHeartRate(ctx context.Context, date string) (any, error) {
	return c.getJSON(ctx, "heart-rate", "/proxy/wellness-service/wellness/dailyHeartRate", map[string]string{
		"date": date,
	})
}

// GetBodyBattery 身体电量端点
func (c *Client) GetBodyBattery(ctx context.Context, date string) (any, error) {
	return c.getJSON(ctx, "body-battery", "/proxy/wellness-service/wellness/bodyBattery/reports/daily", map[string]string{
		"startDate": date,
		"endDate":   date,
	})
}

// GetStress 压力端点
func (c *Client) GetStress(ctx context.Context, date string) (any, error) {
	return c.getJSON(ctx, "stress", "/proxy/wellness-service/wellness/dailyStress/"+date, nil)
}

// GetSocialProfile 用户资料（仅连通性探测用）
func (c *Client) GetSocialProfile(ctx context.Context) (any, error) {
	return c.getJSON(ctx, "profile", "/proxy/userprofile-service/socialProfile", nil)
}

// GetActivities 运动记录列表
func (c *Client) GetActivities(ctx context.Context, start, end string, limit int) (any, error) {
	return c.getJSON(ctx, "activities", "/proxy/activitylist-service/activities/search/activities", map[string]string{
		"startDate": start,
		"endDate":   end,
		"limit":     fmt.Sprintf("%d", limit),
	})
}
