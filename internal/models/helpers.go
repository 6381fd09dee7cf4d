package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// SchemeHost 返回 scheme://host 部分,解析失败时返回空串
func SchemeHost(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// DefaultBasePrefix 未配置站点前缀时,取起始URL去掉查询串和片段
func DefaultBasePrefix(startURL string) string {
	if i := strings.IndexAny(startURL, "?#"); i >= 0 {
		return startURL[:i]
	}
	return startURL
}

// NewRunID 生成运行ID
func NewRunID() string {
	return uuid.New().String()
}
