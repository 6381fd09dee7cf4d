package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile     string
	headersFile    string
	verbose        bool
	logLevel       string
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证请求头配置

	// appConfig PersistentPreRunE 中加载
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "siteharvest",
	Short: "站点页面批量抓取工具",
	Long: `SiteHarvest - 可恢复的站点页面抓取工具

从起始URL出发,抓取站点前缀内的全部页面,支持:
  • 浏览器渲染 (go-rod) 与静态抓取 (colly) 两种引擎
  • 固定数量的标签页并发, 按批次推进
  • 自动点击 "Proceed anyway" 类拦截页
  • HTML / 纯文本 / JSON / Markdown 产物
  • CSV进度文件, Ctrl+C 后可用 --resume 继续
  • 自定义HTTP请求头

示例:
  # 抓取文档站点
  siteharvest crawl -u https://example.com/docs/ --cap 8

  # 中断后继续
  siteharvest crawl -u https://example.com/docs/ --resume

  # 单个页面输出纯文本
  siteharvest page https://example.com/docs/intro

  # 验证请求头配置
  siteharvest --validate-config -H "Authorization: Bearer token"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := config.Logging.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validateConfig {
			return cmd.Help()
		}

		hm, err := core.NewHeaderManager(headersFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		return runValidateHeaders(hm)
	},
}

// runValidateHeaders 加载并验证请求头, 输出脱敏后的结果
func runValidateHeaders(hm *core.HeaderManager) error {
	utils.Info("🔍 验证HTTP头部配置...")
	if err := hm.LoadConfig(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "SiteHarvest %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "构建时间: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&headersFile, "headers-file", "", "请求头配置文件 (默认 configs/headers.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证请求头配置")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(compareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
