package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/SiteHarvest/internal/config"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/126.0.0.0 Safari/537.36"

	defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// HeaderManager 请求头管理器, 实现 models.HeaderProvider
// 优先级: 内置默认 < headers.yaml < 命令行 -H
// 标签页与静态抓取请求会并发调用 GetHeaders
type HeaderManager struct {
	defaults http.Header
	cli      http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	mu     sync.Mutex
	config http.Header
	merged http.Header // 验证通过后的合并结果
}

// NewHeaderManager 创建请求头管理器
// configFile 为空时使用 configs/headers.yaml
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}

	return &HeaderManager{
		defaults:     defaultHeaders(),
		cli:          cli,
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}, nil
}

func defaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{defaultAccept},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 读取 headers.yaml, 只读取一次
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.loadLocked()
}

func (hm *HeaderManager) loadLocked() error {
	if hm.config != nil {
		return nil
	}

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	cfg := make(http.Header, len(headerConfig.Headers))
	for name, value := range headerConfig.Headers {
		cfg.Set(name, value)
	}
	hm.config = cfg

	if len(cfg) > 0 {
		utils.Debugf("已加载 %d 个HTTP头部配置: %v", len(cfg), hm.redactor.Redact(cfg))
	}
	return nil
}

// Validate 依次验证默认、配置文件、命令行头部
func (hm *HeaderManager) Validate() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.validateLocked()
}

func (hm *HeaderManager) validateLocked() error {
	sources := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	}
	for _, src := range sources {
		if err := hm.validator.Validate(src.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", src.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部, 不做验证
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.mergeLocked()
}

func (hm *HeaderManager) mergeLocked() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[http.CanonicalHeaderKey(name)] = values
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的合并头部, 用于日志
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 加载、验证并返回合并后的头部
// 返回值是副本, 调用方可以修改
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged == nil {
		if err := hm.loadLocked(); err != nil {
			return nil, err
		}
		if err := hm.validateLocked(); err != nil {
			return nil, err
		}
		hm.merged = hm.mergeLocked()
		utils.Debugf("所有HTTP头部验证通过")
	}
	return hm.merged.Clone(), nil
}
