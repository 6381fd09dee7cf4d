package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateEngine 验证渲染引擎名称
func ValidateEngine(engine string) error {
	switch models.Engine(engine) {
	case models.EngineBrowser, models.EngineStatic:
		return nil
	}
	return fmt.Errorf("无效的渲染引擎: %s (有效值: browser, static)", engine)
}

// ValidateCrawlFlags 验证 crawl 命令行参数, 零值表示未指定
func ValidateCrawlFlags(f core.CLIFlags) error {
	if f.StartURL != "" {
		if err := ValidateURL(f.StartURL); err != nil {
			return fmt.Errorf("无效的起始URL: %w", err)
		}
	}

	if f.BasePrefix != "" {
		if err := ValidateURL(f.BasePrefix); err != nil {
			return fmt.Errorf("无效的站点前缀: %w", err)
		}
		if f.StartURL != "" && !strings.HasPrefix(f.StartURL, f.BasePrefix) {
			return fmt.Errorf("起始URL %s 不在站点前缀 %s 内", f.StartURL, f.BasePrefix)
		}
	}

	if f.Cap != 0 && (f.Cap < 1 || f.Cap > 64) {
		return fmt.Errorf("并发上限必须在1-64之间,当前值: %d", f.Cap)
	}

	if f.Engine != "" {
		if err := ValidateEngine(f.Engine); err != nil {
			return err
		}
	}

	if f.Timeout < 0 {
		return fmt.Errorf("单页超时不能为负数")
	}

	return nil
}

// NormalizeURL 规范化URL, 没有协议时默认使用https
func NormalizeURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		urlStr = "https://" + urlStr
		parsed, err = url.Parse(urlStr)
		if err != nil {
			return "", err
		}
	}

	if err := ValidateURL(parsed.String()); err != nil {
		return "", err
	}
	return parsed.String(), nil
}
