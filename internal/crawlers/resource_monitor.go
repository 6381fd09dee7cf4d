package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerMB = 1024 * 1024

// ResourceMonitor 系统资源监控器
// 根据可用内存和CPU估算可同时打开的标签页数量
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 系统总内存(字节)
	totalMemory uint64

	mu           sync.RWMutex
	lastMemStats runtime.MemStats
	lastCPUUsage float64

	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 安全阈值(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 视为禁用
	MaxTabsLimit        int   // 绝对最大标签页数
	TabMemoryUsage      int64 // 单个标签页平均内存消耗(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64
	AllocatedMemory uint64
	AvailableMemory int64
	MemoryPressure  string // normal|warning|critical|emergency
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.TabMemoryUsage == 0 {
		config.TabMemoryUsage = 100 * bytesPerMB
	}
	if config.MaxTabsLimit < 1 {
		config.MaxTabsLimit = 64
	}

	var totalMem uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值4GB")
		totalMem = 4 * 1024 * bytesPerMB
	} else {
		totalMem = vmStat.Total
		log.Debug().Msgf("系统总内存: %.2f GB", float64(totalMem)/(1024*bytesPerMB))
	}

	rm := &ResourceMonitor{
		config:      config,
		totalMemory: totalMem,
	}
	runtime.ReadMemStats(&rm.lastMemStats)
	return rm
}

// StartMonitoring 启动后台采样; 重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.Sample()
		}
	}
}

// Sample 立即采样一次内存与CPU
func (rm *ResourceMonitor) Sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	cpuUsage := sampleCPU()

	rm.mu.Lock()
	rm.lastMemStats = memStats
	rm.lastCPUUsage = cpuUsage
	rm.mu.Unlock()
}

// sampleCPU 100毫秒采样间隔的全局CPU使用率
func sampleCPU() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		log.Debug().Err(err).Msg("获取CPU使用率失败")
		return 0
	}
	return percentages[0]
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

func (rm *ResourceMonitor) availableMemory() (int64, uint64) {
	rm.mu.RLock()
	alloc := rm.lastMemStats.Alloc
	rm.mu.RUnlock()
	return int64(rm.totalMemory) - int64(alloc) - rm.config.SafetyReserveMemory, alloc
}

// CalculateMaxTabs 计算当前允许的最大标签页数
// 取内存估算、CPU核数与绝对上限三者最小值,至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	available, _ := rm.availableMemory()

	byMemory := 1
	if available > rm.config.SafetyThreshold {
		byMemory = max(1, int((available-rm.config.SafetyThreshold)/rm.config.TabMemoryUsage))
	}

	return max(1, min(byMemory, runtime.NumCPU(), rm.config.MaxTabsLimit))
}

// CheckResourceAvailability 检查资源是否允许再打开标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	available, _ := rm.availableMemory()
	if available < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/bytesPerMB)
	}

	if rm.config.CPULoadThreshold < 200 {
		rm.mu.RLock()
		cpuUsage := rm.lastCPUUsage
		rm.mu.RUnlock()
		if cpuUsage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
		}
	}
	return true, ""
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	available, alloc := rm.availableMemory()

	pressure := "normal"
	switch mb := available / bytesPerMB; {
	case mb < 200:
		pressure = "emergency"
	case mb < 300:
		pressure = "critical"
	case mb < 500:
		pressure = "warning"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: alloc,
		AvailableMemory: available,
		MemoryPressure:  pressure,
	}
}

// AdviseCap 比较请求的并发上限与资源估算
// enforce 为true时返回收紧后的值,否则只给出提示
func (rm *ResourceMonitor) AdviseCap(requested int, enforce bool) (int, string) {
	maxTabs := rm.CalculateMaxTabs()
	if ok, reason := rm.CheckResourceAvailability(); !ok {
		if enforce {
			return 1, reason + ",并发上限降为1"
		}
		return requested, reason
	}
	if requested <= maxTabs {
		return requested, ""
	}

	advice := fmt.Sprintf("并发上限 %d 超过资源估算的 %d 个标签页", requested, maxTabs)
	if enforce {
		return maxTabs, advice + ",已收紧"
	}
	return requested, advice
}
