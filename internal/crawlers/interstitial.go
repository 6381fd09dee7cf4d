package crawlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultInterstitialLabels 默认识别的拦截页按钮文字
var DefaultInterstitialLabels = []string{"proceed anyway"}

// clickableSelector 可能承载拦截页按钮的元素
const clickableSelector = `a, button, [role="button"], [role="link"], input[type="submit"], input[type="button"]`

// InterstitialDetector 拦截页识别器
// Detect 找到需要点击的控件时返回该元素,没有拦截页时返回 nil, nil
type InterstitialDetector interface {
	Name() string
	Detect(page *rod.Page) (*rod.Element, error)
}

// LabelDetector 按按钮文字识别拦截页 (不区分大小写)
type LabelDetector struct {
	labels  []string
	pattern string
}

// NewLabelDetector 创建按文字匹配的识别器
func NewLabelDetector(labels []string) *LabelDetector {
	if len(labels) == 0 {
		labels = DefaultInterstitialLabels
	}
	return &LabelDetector{
		labels:  labels,
		pattern: labelPattern(labels),
	}
}

func (d *LabelDetector) Name() string {
	return "label:" + strings.Join(d.labels, "|")
}

// Detect 不等待、不重试地查找匹配控件
func (d *LabelDetector) Detect(page *rod.Page) (*rod.Element, error) {
	found, el, err := page.HasR(clickableSelector, d.pattern)
	if err != nil {
		return nil, fmt.Errorf("查找拦截页控件失败: %w", err)
	}
	if !found {
		return nil, nil
	}
	return el, nil
}

// labelPattern 生成JS正则字面量 /a|b/i
func labelPattern(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(regexp.QuoteMeta(l), "/", `\/`))
	}
	return "/" + strings.Join(parts, "|") + "/i"
}

// dismiss 点击拦截页控件
func dismiss(el *rod.Element) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击拦截页控件失败: %w", err)
	}
	return nil
}
