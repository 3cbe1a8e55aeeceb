package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/config"
	"github.com/RecoveryAshes/tabbydump/internal/crawlers"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

// Runner 一次运行的顶层协调器
// 持有全局唯一的RequestManager,批量模式下多个站点共用同一个准入控制
type Runner struct {
	config   *config.Config
	manager  *crawlers.RequestManager
	dynamic  *crawlers.DynamicFetcher
	reporter *utils.Reporter
}

// NewRunner 按配置创建抓取器链: RequestManager → (DynamicFetcher →) StaticFetcher
func NewRunner(cfg *config.Config, headers models.HeaderProvider) (*Runner, error) {
	static := crawlers.NewStaticFetcher(crawlers.StaticFetcherConfig{
		Timeout:     cfg.Request.Timeout(),
		MaxBodySize: cfg.Request.MaxBodySize(),
		Parallelism: cfg.Request.MaxActive,
	}, headers)

	var fetcher crawlers.Fetcher = static
	var dynamic *crawlers.DynamicFetcher
	if cfg.Crawl.Mode == models.ModeDynamic {
		df, err := crawlers.NewDynamicFetcher(crawlers.DynamicFetcherConfig{
			Headless:         cfg.Browser.Headless,
			Timeout:          cfg.Request.Timeout(),
			MaxTabs:          cfg.Browser.MaxTabs,
			SafetyReserveMB:  cfg.Browser.SafetyReserveMB,
			CPULoadThreshold: cfg.Browser.CPULoadThreshold,
		}, static, headers)
		if err != nil {
			return nil, fmt.Errorf("创建动态抓取器失败: %w", err)
		}
		fetcher = df
		dynamic = df
	}

	r := newRunner(cfg, fetcher)
	r.dynamic = dynamic
	return r, nil
}

// newRunner 用给定的抓取器创建Runner
func newRunner(cfg *config.Config, fetcher crawlers.Fetcher) *Runner {
	return &Runner{
		config:   cfg,
		manager:  crawlers.NewRequestManager(fetcher, cfg.Request.MaxActive),
		reporter: utils.NewReporter(cfg.Output.BaseDir),
	}
}

// Run 转储一个站点或单个赛事
// URL中带赛事slug时只转储该赛事(强制包含静态资源),否则转储整站
// 目录创建失败和输入URL错误在任何网络请求之前返回
func (r *Runner) Run(ctx context.Context, rawURL string) (*models.DumpReport, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(r.config.Output.BaseDir, target.Site.Host)
	if _, err := EnsureDir(root); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	utils.Infof("🚀 开始转储: %s", target.Site.BaseURL())
	utils.Infof("抓取模式: %s, 最大并发请求: %d", r.config.Crawl.Mode, r.manager.MaxActive())
	utils.Infof("输出目录: %s", root)

	report := models.NewDumpReport(rawURL, target.Site, r.config.Crawl, root)
	dumper := NewDumper(r.manager, root)

	var runErr error
	if target.HasTournament() {
		tc := NewTournamentCrawler(dumper, target.Site, r.config.Crawl)
		stats, err := tc.Crawl(ctx, *target.Tournament, true)
		report.AddTournament(stats)
		runErr = err
	} else {
		sc := NewSiteCrawler(dumper, target.Site, r.config.Crawl)
		stats, err := sc.Crawl(ctx)
		for _, t := range stats.Tournaments {
			report.AddTournament(t)
		}
		report.HomeAssets = stats.HomeAssets
		report.TotalPages = stats.TotalPages()
		report.FailedURLs = append([]string{}, stats.FailedURLs...)
		runErr = err
	}
	report.Finish()

	utils.Infof("📊 共转储 %d 个页面, 失败 %d 个, 峰值并发 %d, 耗时 %s",
		report.TotalPages, len(report.FailedURLs), r.manager.PeakActive(),
		time.Duration(report.Duration*float64(time.Second)).Round(time.Millisecond))

	if r.config.Output.Report {
		if _, err := r.reporter.SaveReport(report); err != nil {
			utils.Warnf("保存报告失败: %v", err)
		}
	}

	return report, runErr
}

// Close 等待在途请求完成并释放浏览器
func (r *Runner) Close() error {
	r.manager.Close()
	if r.dynamic != nil {
		return r.dynamic.Close()
	}
	return nil
}
