package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// EnvPrefix 环境变量前缀, 如 SITEHARVEST_CRAWL_CAP
const EnvPrefix = "SITEHARVEST"

// Config 应用程序配置
type Config struct {
	Crawl    models.CrawlConfig `mapstructure:"crawl"`
	Browser  BrowserConfig      `mapstructure:"browser"`
	Output   OutputConfig       `mapstructure:"output"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Resource ResourceConfig     `mapstructure:"resource"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
	Context  ContextConfig      `mapstructure:"context"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
	Stealth  bool `mapstructure:"stealth"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"` // 产物、进度与报告的根目录
	IndexDB string `mapstructure:"index_db"` // 产物索引SQLite路径, 为空时不建索引
}

// ProgressDir 进度文件目录
func (o OutputConfig) ProgressDir() string {
	return filepath.Join(o.BaseDir, "progress")
}

// ReportsDir 报告目录
func (o OutputConfig) ReportsDir() string {
	return filepath.Join(o.BaseDir, "reports")
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LogConfig 转换为日志系统配置
func (l LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      l.Level,
		LogDir:     l.LogDir,
		MaxSize:    l.Rotation.MaxSize,
		MaxBackups: l.Rotation.MaxBackups,
		MaxAge:     l.Rotation.MaxAge,
		Compress:   l.Rotation.Compress,
	}
}

// ResourceConfig 资源估算配置
type ResourceConfig struct {
	Enforce          bool  `mapstructure:"enforce"`             // 超过估算时收紧并发上限
	TabMemoryMB      int64 `mapstructure:"tab_memory_mb"`       // 单个标签页内存估算
	SafetyReserveMB  int64 `mapstructure:"safety_reserve_mb"`   // 保留内存
	SafetyThreshold  int64 `mapstructure:"safety_threshold_mb"` // 低于此值视为内存不足
	CPULoadThreshold int   `mapstructure:"cpu_load_threshold"`  // >=200 关闭CPU检查
}

// MonitorConfig 转换为资源监控器配置
func (r ResourceConfig) MonitorConfig(maxTabs int) crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: r.SafetyReserveMB * mb,
		SafetyThreshold:     r.SafetyThreshold * mb,
		CPULoadThreshold:    r.CPULoadThreshold,
		MaxTabsLimit:        maxTabs,
		TabMemoryUsage:      r.TabMemoryMB * mb,
	}
}

// MetricsConfig 指标服务配置
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // 为空时不启动
}

// ContextConfig context命令配置
type ContextConfig struct {
	KeyURLsFile string        `mapstructure:"key_urls_file"`
	OutputFile  string        `mapstructure:"output_file"`
	Delay       time.Duration `mapstructure:"delay"`
}

// LoadConfig 加载配置文件
// 未指定路径时依次搜索 ./configs, 当前目录, $XDG_CONFIG_HOME/siteharvest, ~/.siteharvest
// 找不到配置文件时使用默认值; SITEHARVEST_* 环境变量覆盖配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "siteharvest"))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".siteharvest"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	} else {
		utils.Debugf("已加载配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取
	v.SetDefault("crawl.start_url", "")
	v.SetDefault("crawl.base_prefix", "")
	v.SetDefault("crawl.cap", 10)
	v.SetDefault("crawl.resume", false)
	v.SetDefault("crawl.engine", string(models.EngineBrowser))
	v.SetDefault("crawl.save_html", false)
	v.SetDefault("crawl.save_text", false)
	v.SetDefault("crawl.save_json", true)
	v.SetDefault("crawl.save_markdown", false)
	v.SetDefault("crawl.page_timeout", 90*time.Second)
	v.SetDefault("crawl.scroll_interval", 2*time.Second)
	v.SetDefault("crawl.max_scrolls", 0)
	v.SetDefault("crawl.interstitial_wait", time.Second)
	v.SetDefault("crawl.interstitial_labels", crawlers.DefaultInterstitialLabels)
	v.SetDefault("crawl.max_redirect_hops", 3)
	v.SetDefault("crawl.rate_limit", 0.0)

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", false)

	// 输出
	v.SetDefault("output.base_dir", filepath.Join("data", "scraping"))
	v.SetDefault("output.index_db", "")

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 资源
	v.SetDefault("resource.enforce", false)
	v.SetDefault("resource.tab_memory_mb", 100)
	v.SetDefault("resource.safety_reserve_mb", 512)
	v.SetDefault("resource.safety_threshold_mb", 256)
	v.SetDefault("resource.cpu_load_threshold", 200)

	// 指标
	v.SetDefault("metrics.listen", "")

	// context 命令
	v.SetDefault("context.key_urls_file", filepath.Join("data", "context", "key_urls.json"))
	v.SetDefault("context.output_file", filepath.Join("data", "context", "big_context.json"))
	v.SetDefault("context.delay", 2*time.Second)
}

// CLIFlags 命令行覆盖项, 零值表示未指定
type CLIFlags struct {
	StartURL   string
	BasePrefix string
	Cap        int
	Resume     bool
	Engine     string
	Headless   *bool
	Stealth    bool
	SaveHTML   bool
	SaveText   bool
	SaveJSON   *bool
	SaveMD     bool
	Timeout    time.Duration
	OutputDir  string
	IndexDB    string
	LogLevel   string
	Metrics    string
}

// MergeCLIFlags 合并命令行参数到配置 (命令行优先)
func (c *Config) MergeCLIFlags(f CLIFlags) {
	if f.StartURL != "" {
		c.Crawl.StartURL = f.StartURL
	}
	if f.BasePrefix != "" {
		c.Crawl.BasePrefix = f.BasePrefix
	}
	if c.Crawl.BasePrefix == "" && c.Crawl.StartURL != "" {
		c.Crawl.BasePrefix = models.DefaultBasePrefix(c.Crawl.StartURL)
	}
	if f.Cap > 0 {
		c.Crawl.Cap = f.Cap
	}
	if f.Resume {
		c.Crawl.Resume = true
	}
	if f.Engine != "" {
		c.Crawl.Engine = models.Engine(f.Engine)
	}
	if f.Headless != nil {
		c.Browser.Headless = *f.Headless
	}
	if f.Stealth {
		c.Browser.Stealth = true
	}
	if f.SaveHTML {
		c.Crawl.SaveHTML = true
	}
	if f.SaveText {
		c.Crawl.SaveText = true
	}
	if f.SaveJSON != nil {
		c.Crawl.SaveJSON = *f.SaveJSON
	}
	if f.SaveMD {
		c.Crawl.SaveMarkdown = true
	}
	if f.Timeout > 0 {
		c.Crawl.PageTimeout = f.Timeout
	}
	if f.OutputDir != "" {
		c.Output.BaseDir = f.OutputDir
	}
	if f.IndexDB != "" {
		c.Output.IndexDB = f.IndexDB
	}
	if f.LogLevel != "" {
		c.Logging.Level = f.LogLevel
	}
	if f.Metrics != "" {
		c.Metrics.Listen = f.Metrics
	}
}
