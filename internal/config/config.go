package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 TABBYDUMP_REQUEST_MAX_ACTIVE
const EnvPrefix = "TABBYDUMP"

// Config 应用程序配置
type Config struct {
	Request RequestConfig      `mapstructure:"request"`
	Crawl   models.CrawlConfig `mapstructure:"crawl"`
	Output  OutputConfig       `mapstructure:"output"`
	Logging LoggingConfig      `mapstructure:"logging"`
	Browser BrowserConfig      `mapstructure:"browser"`

	// 实际使用的配置文件(未找到时为空)
	FilePath string `mapstructure:"-"`
}

// RequestConfig 出站请求配置
type RequestConfig struct {
	MaxActive     int               `mapstructure:"max_active"`    // 同时在途的最大请求数
	TimeoutSec    int               `mapstructure:"timeout"`       // 单个请求超时(秒),0表示使用默认值
	MaxBodySizeMB int               `mapstructure:"max_body_size"` // 单个响应上限(MB)
	Headers       map[string]string `mapstructure:"headers"`       // 自定义HTTP头部
	BatchDelaySec int               `mapstructure:"batch_delay"`   // 批量模式下站点之间的间隔(秒)
}

// Timeout 单个请求超时
func (r RequestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// MaxBodySize 单个响应上限(字节)
func (r RequestConfig) MaxBodySize() int {
	return r.MaxBodySizeMB * 1024 * 1024
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"` // 转储根目录,站点写入 <base_dir>/<host>/
	Report  bool   `mapstructure:"report"`   // 是否写入JSON报告
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

// BrowserConfig 动态模式浏览器配置
type BrowserConfig struct {
	Headless         bool `mapstructure:"headless"`
	MaxTabs          int  `mapstructure:"max_tabs"`
	SafetyReserveMB  int  `mapstructure:"safety_reserve_mb"`
	CPULoadThreshold int  `mapstructure:"cpu_load_threshold"`
}

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs, ., ~/.tabbydump 下的 config.yaml
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tabbydump"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 指定了文件却读不到,或者文件格式错误,都是配置错误
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("解析配置文件失败: %w", err),
		}
	}
	config.FilePath = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: config.FilePath, Cause: err}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 请求配置默认值
	v.SetDefault("request.max_active", models.DefaultMaxActive)
	v.SetDefault("request.timeout", 30)
	v.SetDefault("request.max_body_size", 50)
	v.SetDefault("request.batch_delay", 1)

	// 爬取配置默认值
	v.SetDefault("crawl.mode", string(models.ModeStatic))
	v.SetDefault("crawl.include_static", false)
	v.SetDefault("crawl.tournament_concurrency", 1)
	v.SetDefault("crawl.page_concurrency", 0)
	v.SetDefault("crawl.continue_on_error", true)
	v.SetDefault("crawl.participant_marker", "vueData")
	v.SetDefault("crawl.participant_suffixes", []string{"/participants/list/", "/feedback/progress/"})
	v.SetDefault("crawl.excluded_slugs", []string{"inactive"})
	v.SetDefault("crawl.show_progress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "dumps")
	v.SetDefault("output.report", true)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 浏览器配置默认值
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_tabs", 4)
	v.SetDefault("browser.safety_reserve_mb", 512)
	v.SetDefault("browser.cpu_load_threshold", 90)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Request.MaxActive < 1 || c.Request.MaxActive > 100 {
		return fmt.Errorf("最大并发请求数必须在1-100之间, 当前: %d", c.Request.MaxActive)
	}
	if c.Request.TimeoutSec < 0 {
		return fmt.Errorf("请求超时不能为负数")
	}
	if c.Request.MaxBodySizeMB < 1 {
		return fmt.Errorf("响应体上限必须至少为1MB")
	}
	if c.Request.BatchDelaySec < 0 {
		return fmt.Errorf("批量间隔不能为负数")
	}
	if c.Output.BaseDir == "" {
		return fmt.Errorf("输出目录不能为空")
	}
	if c.Browser.MaxTabs < 1 {
		return fmt.Errorf("浏览器标签页上限必须至少为1")
	}
	return c.Crawl.Validate()
}

// Overrides 命令行参数覆盖项,零值表示未指定
type Overrides struct {
	Mode                  string
	MaxActive             int
	TournamentConcurrency int
	PageConcurrency       int // <0 表示未指定
	ContinueOnError       *bool
	IncludeStatic         *bool
	NoProgress            bool
	OutputDir             string
	BatchDelay            int // <0 表示未指定
	LogLevel              string
}

// NoOverrides 返回不覆盖任何配置项的Overrides
func NoOverrides() Overrides {
	return Overrides{PageConcurrency: -1, BatchDelay: -1}
}

// MergeCLIFlags 合并命令行参数到配置,命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(o Overrides) error {
	if o.Mode != "" {
		c.Crawl.Mode = models.FetchMode(o.Mode)
	}
	if o.MaxActive > 0 {
		c.Request.MaxActive = o.MaxActive
	}
	if o.TournamentConcurrency > 0 {
		c.Crawl.TournamentConcurrency = o.TournamentConcurrency
	}
	if o.PageConcurrency >= 0 {
		c.Crawl.PageConcurrency = o.PageConcurrency
	}
	if o.ContinueOnError != nil {
		c.Crawl.ContinueOnError = *o.ContinueOnError
	}
	if o.IncludeStatic != nil {
		c.Crawl.IncludeStatic = *o.IncludeStatic
	}
	if o.NoProgress {
		c.Crawl.ShowProgress = false
	}
	if o.OutputDir != "" {
		c.Output.BaseDir = o.OutputDir
	}
	if o.BatchDelay >= 0 {
		c.Request.BatchDelaySec = o.BatchDelay
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	return c.Validate()
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}
