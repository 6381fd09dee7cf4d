package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/go-rod/rod"
)

func TestLabelPattern(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"默认文字", DefaultInterstitialLabels, "/proceed anyway/i"},
		{"多个文字", []string{"Continue", "继续访问"}, "/Continue|继续访问/i"},
		{"转义元字符", []string{"Go (unsafe)?"}, `/Go \(unsafe\)\?/i`},
		{"转义斜杠", []string{"yes/no"}, `/yes\/no/i`},
		{"忽略空白项", []string{" ", "ok "}, "/ok/i"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := labelPattern(tt.labels); got != tt.want {
				t.Errorf("labelPattern(%q) = %q, want %q", tt.labels, got, tt.want)
			}
		})
	}
}

func TestNewLabelDetector_Defaults(t *testing.T) {
	d := NewLabelDetector(nil)
	if d.Name() != "label:proceed anyway" {
		t.Errorf("Name() = %q", d.Name())
	}
	if d.pattern != "/proceed anyway/i" {
		t.Errorf("pattern = %q", d.pattern)
	}
}

type nopDetector struct{}

func (nopDetector) Name() string { return "nop" }

func (nopDetector) Detect(*rod.Page) (*rod.Element, error) { return nil, nil }

func TestBrowserSession_Detectors(t *testing.T) {
	cfg := models.CrawlConfig{Cap: 3, InterstitialLabels: []string{"Continue"}}
	s, err := NewBrowserSession(nil, cfg, false, nil)
	if err != nil {
		t.Fatalf("NewBrowserSession() error = %v", err)
	}
	defer s.Close()

	if len(s.detectors) != 1 || s.detectors[0].Name() != "label:Continue" {
		t.Fatalf("默认识别器不符: %v", s.detectors)
	}
	s.AddDetector(nopDetector{})
	if len(s.detectors) != 2 || s.detectors[1].Name() != "nop" {
		t.Errorf("追加识别器失败: %v", s.detectors)
	}
	if s.pool.Cap() != 3 {
		t.Errorf("标签页池上限 = %d, 期望 3", s.pool.Cap())
	}
}
