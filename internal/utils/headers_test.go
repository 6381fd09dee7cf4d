package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
)

func TestHeaderValidator_ValidateName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "User-Agent", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"合法名称-单字符", "X", false},
		{"非法名称-空格", "User Agent", true},
		{"非法名称-下划线", "User_Agent", true},
		{"非法名称-特殊字符", "User@Agent", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_ValidateValue(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{"合法值-ASCII", "Mozilla/5.0", false},
		{"合法值-空字符串", "", false},
		{"合法值-引号与冒号", `a "b" https://x:8080/p`, false},
		{"合法值-最大长度", strings.Repeat("a", MaxHeaderValueLength), false},
		{"非法值-超长", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法值-控制字符", "value\x00with\x01null", true},
		{"非法值-中文", "测试中文", true},
		{"非法值-表情", "test 😀 emoji", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateValue("X-Test", tt.value)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
			var ve *models.ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("错误类型应为 *ValidationError: %T", err)
			}
		})
	}
}

func TestHeaderValidator_IsForbidden(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		headerName string
		expected   bool
	}{
		{"Host", true},
		{"host", true},
		{"HoSt", true},
		{"Content-Length", true},
		{"upgrade", true},
		{"Keep-Alive", true},
		{"User-Agent", false},
		{"Cookie", false},
	}

	for _, tt := range tests {
		t.Run(tt.headerName, func(t *testing.T) {
			if got := validator.IsForbidden(tt.headerName); got != tt.expected {
				t.Errorf("IsForbidden(%q) = %v, want %v", tt.headerName, got, tt.expected)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headers     http.Header
		expectError bool
	}{
		{
			name: "合法头部",
			headers: http.Header{
				"User-Agent": []string{"Mozilla/5.0"},
				"Accept":     []string{"*/*"},
				"Cookie":     []string{"session=abc"},
			},
		},
		{
			name:        "包含禁止头部",
			headers:     http.Header{"User-Agent": []string{"x"}, "Host": []string{"example.com"}},
			expectError: true,
		},
		{
			name:        "包含非法值",
			headers:     http.Header{"User-Agent": []string{"value\x00bad"}},
			expectError: true,
		},
		{
			name:    "空头部",
			headers: http.Header{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.headers)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderRedactor_Redact(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"Bearer令牌", "Authorization", "Bearer secret-token-12345", "Bearer ***"},
		{"Basic认证", "Authorization", "Basic dXNlcjpwYXNz", "Basic ***"},
		{"长密钥保留首尾", "X-Api-Key", "api-key-67890", "api-***7890"},
		{"Cookie", "Cookie", "session=abcdefgh", "sess***efgh"},
		{"短值全部隐藏", "X-Token", "abc", "***"},
		{"空值", "Authorization", "", "***"},
		{"普通头部不脱敏", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Accept不脱敏", "Accept", "*/*", "*/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(tt.header, tt.value)
			got := redactor.Redact(headers)[http.CanonicalHeaderKey(tt.header)]
			if got != tt.want {
				t.Errorf("Redact(%s) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestHeaderRedactor_RedactToString(t *testing.T) {
	redactor := NewHeaderRedactor()
	headers := http.Header{
		"X-Custom":      []string{"v"},
		"Authorization": []string{"Bearer t"},
	}
	want := "Authorization: Bearer ***, X-Custom: v"
	if got := redactor.RedactToString(headers); got != want {
		t.Errorf("RedactToString() = %q, want %q", got, want)
	}
}
