package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/SiteHarvest/internal/config"
	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
)

// checkResult 单项环境检查结果
type checkResult struct {
	Name   string
	OK     bool
	Fatal  bool // 失败时整体不通过
	Detail string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境 (浏览器、输出目录、资源)",
	RunE: func(cmd *cobra.Command, args []string) error {
		results := runChecks(appConfig, headersFile)
		if !printChecks(cmd.OutOrStdout(), results) {
			return fmt.Errorf("环境验证失败,请解决上述问题")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// runChecks 依次执行环境检查
func runChecks(cfg *core.Config, headersPath string) []checkResult {
	results := []checkResult{
		{Name: "Go版本", OK: true, Detail: runtime.Version()},
		{Name: "操作系统", OK: true, Detail: runtime.GOOS + "/" + runtime.GOARCH},
	}

	browser := checkResult{Name: "浏览器"}
	if path, has := launcher.LookPath(); has {
		browser.OK = true
		browser.Detail = path
	} else {
		browser.Detail = "未找到Chrome/Chromium, 首次运行时go-rod会自动下载; 也可使用 --engine static"
	}
	results = append(results, browser)

	results = append(results, checkWritable("输出目录", cfg.Output.BaseDir))

	loader := config.NewHeaderConfigLoader(headersPath)
	headerCheck := checkResult{Name: "请求头配置", Fatal: true}
	if _, err := loader.LoadConfig(); err != nil {
		headerCheck.Detail = err.Error()
	} else {
		headerCheck.OK = true
		headerCheck.Detail = loader.Path()
	}
	results = append(results, headerCheck)

	rm := crawlers.NewResourceMonitor(cfg.Resource.MonitorConfig(64))
	rm.Sample()
	status := rm.GetMemoryStatus()
	maxTabs := rm.CalculateMaxTabs()
	results = append(results, checkResult{
		Name:   "资源估算",
		OK:     maxTabs >= cfg.Crawl.Cap,
		Detail: fmt.Sprintf("内存压力 %s, 建议并发上限 %d (当前配置 %d)", status.MemoryPressure, maxTabs, cfg.Crawl.Cap),
	})

	return results
}

// checkWritable 目录可创建且可写
func checkWritable(name, dir string) checkResult {
	r := checkResult{Name: name, Fatal: true}
	if err := os.MkdirAll(dir, 0755); err != nil {
		r.Detail = err.Error()
		return r
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		r.Detail = err.Error()
		return r
	}
	f.Close()
	os.Remove(f.Name())

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	r.OK = true
	r.Detail = abs
	return r
}

// printChecks 输出检查结果, 返回是否全部通过
func printChecks(w io.Writer, results []checkResult) bool {
	fmt.Fprintln(w, "==============================================")
	fmt.Fprintln(w, "  SiteHarvest 环境验证")
	fmt.Fprintln(w, "==============================================")

	allOK := true
	for _, r := range results {
		mark := "✅"
		if !r.OK {
			mark = "⚠️ "
			if r.Fatal {
				mark = "❌"
				allOK = false
			}
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, r.Name, r.Detail)
	}

	fmt.Fprintln(w, "==============================================")
	if allOK {
		fmt.Fprintln(w, "✅ 环境验证通过!")
	} else {
		fmt.Fprintln(w, "❌ 环境验证失败,请解决上述问题。")
	}
	return allOK
}
