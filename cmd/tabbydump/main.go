package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/RecoveryAshes/tabbydump/internal/config"
	"github.com/RecoveryAshes/tabbydump/internal/core"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// TokenEnv 未在命令行给出令牌时读取的环境变量
const TokenEnv = "TABBYDUMP_TOKEN"

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 转储参数
	urlFile               string
	mode                  string
	outputDir             string
	maxActive             int
	tournamentConcurrency int
	pageConcurrency       int
	continueOnError       bool
	includeStatic         bool
	noProgress            bool

	// 批量处理参数
	batchDelay int
)

// appConfig 在PersistentPreRunE中加载
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "tabbydump <url> [token]",
	Short: "Tabbycat赛事站点离线镜像工具",
	Long: `tabbydump - 将Tabbycat赛事站点转储到本地磁盘,用于离线浏览

URL格式: (protocol://)?host(/tournamentSlug)?
  • 带赛事slug: 只转储该赛事(首页、静态资源、导航页面、参赛者页面)
  • 不带slug:   转储站点首页和所有活跃赛事(依次执行)

输出目录: <output>/<host>/,路径与站点URL一一对应,无扩展名的页面保存为 index.html

示例:
  # 转储整站
  tabbydump https://tab.example.com 0123456789abcdef

  # 只转储一个赛事
  tabbydump tab.example.com/wudc 0123456789abcdef

  # 令牌也可以通过环境变量提供
  TABBYDUMP_TOKEN=0123456789abcdef tabbydump tab.example.com

  # 批量转储
  tabbydump --url-file sites.txt 0123456789abcdef

  # 验证配置 (输出脱敏后的HTTP头部)
  tabbydump --validate-config -H "X-Client: lab"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		if err := cfg.MergeCLIFlags(collectOverrides(cmd)); err != nil {
			return fmt.Errorf("命令行参数无效: %w", err)
		}

		if err := utils.InitLogger(cfg.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		utils.Infof("tabbydump %s", Version)
		if cfg.FilePath != "" {
			utils.Debugf("使用配置文件: %s", cfg.FilePath)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig(args)
		}

		siteURL, token := splitArgs(args)

		if urlFile != "" {
			if siteURL != "" && token == "" {
				// --url-file 模式下唯一的位置参数是令牌
				siteURL, token = "", siteURL
			}
			if err := ValidateURLFile(urlFile); err != nil {
				return err
			}
		} else if siteURL == "" {
			return core.ErrNoURL
		}

		if token == "" {
			token = os.Getenv(TokenEnv)
		}
		if token == "" {
			utils.Warn("⚠️  未提供API令牌,将以匿名身份访问站点")
		}

		headerManager, err := core.NewHeaderManager(appConfig.Request.Headers, headers, token)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部验证失败: %w", err)
		}
		utils.Debugf("HTTP头部: %v", headerManager.GetSafeHeaders())

		// Ctrl+C 取消等待中的转储
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 先解析URL,输入错误在任何网络活动之前返回
		if siteURL != "" {
			if _, err := core.ParseTarget(siteURL); err != nil {
				return err
			}
		}

		runner, err := core.NewRunner(appConfig, headerManager)
		if err != nil {
			return err
		}
		defer func() {
			if err := runner.Close(); err != nil {
				utils.Warnf("关闭抓取器失败: %v", err)
			}
		}()

		if urlFile != "" {
			urls, err := utils.ReadURLsFromFile(urlFile, ValidateSiteURL)
			if err != nil {
				return fmt.Errorf("读取URL文件失败: %w", err)
			}

			batchCrawler := core.NewBatchCrawler(runner, appConfig.Request.BatchDelaySec, appConfig.Crawl.ContinueOnError)
			summary, err := batchCrawler.CrawlBatch(ctx, urls)
			if err != nil {
				return fmt.Errorf("批量转储失败: %w", err)
			}
			if summary.FailCount > 0 && !appConfig.Crawl.ContinueOnError {
				return fmt.Errorf("批量转储中止: %d 个站点失败", summary.FailCount)
			}

			utils.Info("✨ 批量转储任务完成!")
			return nil
		}

		report, err := runner.Run(ctx, siteURL)
		if err != nil {
			return err
		}

		printReport(report)
		utils.Info("✨ 转储任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tabbydump %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// splitArgs 位置参数: <url> [token]
func splitArgs(args []string) (siteURL, token string) {
	if len(args) > 0 {
		siteURL = args[0]
	}
	if len(args) > 1 {
		token = args[1]
	}
	return siteURL, token
}

// runValidateConfig 验证配置并输出脱敏后的有效头部
func runValidateConfig(args []string) error {
	utils.Info("🔍 验证配置...")

	_, token := splitArgs(args)
	if token == "" {
		token = os.Getenv(TokenEnv)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Request.Headers, headers, token)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("抓取模式: %s, 最大并发请求: %d, 赛事并发: %d",
		appConfig.Crawl.Mode, appConfig.Request.MaxActive, appConfig.Crawl.TournamentConcurrency)
	utils.Infof("当前有效的HTTP头部 (%d个):", len(names))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

// printReport 输出转储统计
func printReport(report *models.DumpReport) {
	fmt.Println("==================================================")
	fmt.Println("📊 转储统计")
	fmt.Println("==================================================")
	fmt.Printf("🌐 站点: %s\n", report.Site.BaseURL())
	fmt.Printf("🏆 赛事数: %d\n", len(report.Tournaments))
	for _, t := range report.Tournaments {
		participants := "未找到"
		if t.ParticipantFound {
			participants = fmt.Sprintf("%d", t.ParticipantPages)
		}
		fmt.Printf("   - %s: 核心页 %d, 静态资源 %d, 参赛者页 %s\n", t.Slug, t.CorePages, t.StaticAssets, participants)
	}
	fmt.Printf("✅ 总页面数: %d\n", report.TotalPages)
	fmt.Printf("❌ 失败: %d\n", len(report.FailedURLs))
	fmt.Printf("📁 输出目录: %s\n", report.OutputDir)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", report.Duration)
	fmt.Println("==================================================")
}

// collectOverrides 只收集用户显式指定的参数
func collectOverrides(cmd *cobra.Command) config.Overrides {
	o := config.NoOverrides()
	flags := cmd.Flags()

	if flags.Changed("mode") {
		o.Mode = mode
	}
	if flags.Changed("concurrency") {
		o.MaxActive = maxActive
	}
	if flags.Changed("tournament-concurrency") {
		o.TournamentConcurrency = tournamentConcurrency
	}
	if flags.Changed("page-concurrency") {
		o.PageConcurrency = pageConcurrency
	}
	if flags.Changed("continue-on-error") {
		o.ContinueOnError = &continueOnError
	}
	if flags.Changed("include-static") {
		o.IncludeStatic = &includeStatic
	}
	if flags.Changed("batch-delay") {
		o.BatchDelay = batchDelay
	}
	o.NoProgress = noProgress
	o.OutputDir = outputDir
	o.LogLevel = logLevel
	if verbose && o.LogLevel == "" {
		o.LogLevel = "debug"
	}
	return o
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (等同 --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件和HTTP头部后退出")

	// 转储参数
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含站点URL列表的文件路径")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", string(models.ModeStatic), "抓取模式 (static|dynamic)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录 (默认: dumps)")
	rootCmd.Flags().IntVar(&maxActive, "concurrency", models.DefaultMaxActive, "同时在途的最大请求数 (1-100)")
	rootCmd.Flags().IntVar(&tournamentConcurrency, "tournament-concurrency", 1, "同时转储的赛事数 (1-16)")
	rootCmd.Flags().IntVar(&pageConcurrency, "page-concurrency", 0, "单批页面的goroutine上限 (0: 不限)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "单个页面失败时继续转储")
	rootCmd.Flags().BoolVar(&includeStatic, "include-static", false, "整站模式下同时转储每个赛事首页的静态资源")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理站点间延迟(秒)")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
