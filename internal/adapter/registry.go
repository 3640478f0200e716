package adapter

import (
	"fmt"
	"sort"
	"sync"

	"healthhub/internal/domain"

	"go.uber.org/zap"
)

// Constructor 适配器构造函数
// secret 为已解密的凭证分支，cred 提供附加配置（区域、设备 ID 等）
type Constructor func(cred *domain.DeviceCredential, secret *domain.SecretPayload, logger *zap.Logger) (DeviceAdapter, error)

// DeviceInfo 注册表对外暴露的设备元数据
type DeviceInfo struct {
	DeviceType domain.DeviceType `json:"device_type"`
	AuthType   domain.AuthType   `json:"auth_type"`
}

// Registry 适配器注册表
// 进程启动时按设备类型注册一次，新增厂家不需要改动编排器
type Registry struct {
	mu           sync.RWMutex
	constructors map[domain.DeviceType]Constructor
	infos        map[domain.DeviceType]DeviceInfo
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[domain.DeviceType]Constructor),
		infos:        make(map[domain.DeviceType]DeviceInfo),
	}
}

// Register 注册适配器构造函数
func (r *Registry) Register(deviceType domain.DeviceType, authType domain.AuthType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[deviceType] = ctor
	r.infos[deviceType] = DeviceInfo{DeviceType: deviceType, AuthType: authType}
}

// Build 按凭证构造适配器实例
func (r *Registry) Build(cred *domain.DeviceCredential, secret *domain.SecretPayload, logger *zap.Logger) (DeviceAdapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[cred.DeviceType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported device type: %s", cred.DeviceType)
	}
	return ctor(cred, secret, logger)
}

// Supported 返回已注册的设备元数据（按类型排序）
func (r *Registry) Supported() []DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(r.infos))
	for _, info := range r.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].DeviceType < infos[j].DeviceType
	})
	return infos
}

// AuthTypeOf 查询设备类型的认证方式（用于绑定请求校验）
func (r *Registry) AuthTypeOf(deviceType domain.DeviceType) (domain.AuthType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[deviceType]
	return info.AuthType, ok
}
