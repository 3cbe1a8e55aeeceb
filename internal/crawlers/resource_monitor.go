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

// ResourceMonitor 系统资源监控器
// 职责: 周期采样系统内存和CPU,为动态模式计算浏览器标签页上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 最近一次采样
	availableMemory uint64
	cpuUsage        float64
	mu              sync.RWMutex

	// 监控控制
	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>=200视为禁用
	MaxTabsLimit        int   // 绝对最大标签页数
	TabMemoryUsage      int64 // 单个标签页平均内存消耗(字节)
}

// NewResourceMonitor 创建资源监控器实例并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.TabMemoryUsage <= 0 {
		config.TabMemoryUsage = 100 * 1024 * 1024 // 100MB
	}
	if config.MaxTabsLimit < 1 {
		config.MaxTabsLimit = 1
	}

	rm := &ResourceMonitor{config: config}
	rm.sampleMemory()

	log.Debug().Msgf("可用内存: %.2f GB", float64(rm.availableMemory)/(1024*1024*1024))
	return rm
}

// StartMonitoring 启动后台采样(幂等)
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
			rm.sampleMemory()
			rm.sampleCPU()
		}
	}
}

// sampleMemory 使用gopsutil读取系统可用内存
func (rm *ResourceMonitor) sampleMemory() {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,按1GB可用估算")
		rm.mu.Lock()
		rm.availableMemory = 1024 * 1024 * 1024
		rm.mu.Unlock()
		return
	}

	rm.mu.Lock()
	rm.availableMemory = vmStat.Available
	rm.mu.Unlock()
}

// sampleCPU 读取所有核心的平均CPU使用率
func (rm *ResourceMonitor) sampleCPU() {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		log.Debug().Err(err).Msg("获取CPU使用率失败")
		return
	}

	rm.mu.Lock()
	rm.cpuUsage = percentages[0]
	rm.mu.Unlock()
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

// CalculateMaxTabs 当前允许的最大标签页数
// min(内存余量/单标签页内存, CPU核心数, 配置上限),至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.mu.RLock()
	available := int64(rm.availableMemory)
	rm.mu.RUnlock()

	surplus := available - rm.config.SafetyReserveMemory
	result := int(surplus / rm.config.TabMemoryUsage)

	if n := runtime.NumCPU(); n < result {
		result = n
	}
	if rm.config.MaxTabsLimit < result {
		result = rm.config.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}
	return result
}

// CheckResourceAvailability 检查当前资源是否允许再开一个标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	rm.mu.RLock()
	available := int64(rm.availableMemory)
	cpuUsage := rm.cpuUsage
	rm.mu.RUnlock()

	if available-rm.config.SafetyReserveMemory < rm.config.TabMemoryUsage {
		return false, fmt.Sprintf("内存不足(当前可用%dMB)", available/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 && cpuUsage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
	}

	return true, ""
}
