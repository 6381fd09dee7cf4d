package crawlers

import (
	"runtime"
	"testing"
)

func fixedMonitor(totalMB uint64, cfg ResourceMonitorConfig) *ResourceMonitor {
	if cfg.TabMemoryUsage == 0 {
		cfg.TabMemoryUsage = 100 * bytesPerMB
	}
	return &ResourceMonitor{config: cfg, totalMemory: totalMB * bytesPerMB}
}

func TestResourceMonitor_AdviseCap(t *testing.T) {
	plenty := ResourceMonitorConfig{CPULoadThreshold: 200, MaxTabsLimit: 2}
	ceiling := min(2, runtime.NumCPU())

	tests := []struct {
		name       string
		totalMB    uint64
		cfg        ResourceMonitorConfig
		requested  int
		enforce    bool
		want       int
		wantAdvice bool
	}{
		{"资源充足", 64 * 1024, plenty, 1, true, 1, false},
		{"超过估算且收紧", 64 * 1024, plenty, 10, true, ceiling, true},
		{"超过估算仅提示", 64 * 1024, plenty, 10, false, 10, true},
		{"内存不足且收紧", 100, ResourceMonitorConfig{SafetyThreshold: 200 * bytesPerMB, CPULoadThreshold: 200}, 8, true, 1, true},
		{"内存不足仅提示", 100, ResourceMonitorConfig{SafetyThreshold: 200 * bytesPerMB, CPULoadThreshold: 200}, 8, false, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := fixedMonitor(tt.totalMB, tt.cfg)
			got, advice := rm.AdviseCap(tt.requested, tt.enforce)
			if got != tt.want {
				t.Errorf("AdviseCap() = %d, want %d", got, tt.want)
			}
			if (advice != "") != tt.wantAdvice {
				t.Errorf("advice = %q, wantAdvice %v", advice, tt.wantAdvice)
			}
		})
	}
}

func TestResourceMonitor_MemoryPressure(t *testing.T) {
	tests := []struct {
		name    string
		totalMB uint64
		want    string
	}{
		{"正常", 4096, "normal"},
		{"警告", 400, "warning"},
		{"严重", 250, "critical"},
		{"紧急", 100, "emergency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := fixedMonitor(tt.totalMB, ResourceMonitorConfig{})
			if got := rm.GetMemoryStatus().MemoryPressure; got != tt.want {
				t.Errorf("MemoryPressure = %s, want %s", got, tt.want)
			}
		})
	}
}
