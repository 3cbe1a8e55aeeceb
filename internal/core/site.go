package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/crawlers"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"golang.org/x/sync/errgroup"
)

// SiteCrawler 整站转储: 站点首页、首页静态资源、所有活跃赛事
type SiteCrawler struct {
	dumper      *Dumper
	site        models.Site
	config      models.CrawlConfig
	tournaments *TournamentCrawler
}

// NewSiteCrawler 创建整站爬取器
func NewSiteCrawler(dumper *Dumper, site models.Site, config models.CrawlConfig) *SiteCrawler {
	return &SiteCrawler{
		dumper:      dumper,
		site:        site,
		config:      config,
		tournaments: NewTournamentCrawler(dumper, site, config),
	}
}

// Crawl 转储整站
// 赛事按首页列表顺序转储,同时运行的赛事数由 TournamentConcurrency 限制(默认1,即严格顺序)
func (sc *SiteCrawler) Crawl(ctx context.Context) (stats models.SiteStats, err error) {
	start := time.Now()
	stats.Site = sc.site
	defer func() {
		stats.Duration = time.Since(start)
	}()

	utils.Info("🌐 URL中未指定赛事,转储所有活跃赛事...")

	// 站点首页
	homeURL := sc.site.URL("/")
	utils.Info("转储站点首页...")
	homeResult, err := sc.dumper.Dump(ctx, homeURL)
	if err != nil {
		stats.FailedURLs = append(stats.FailedURLs, homeURL)
		return stats, err
	}

	homePage, err := crawlers.ParsePage(homeResult)
	if err != nil {
		return stats, fmt.Errorf("解析站点首页失败: %w", err)
	}

	slugs, skipped := filterSlugs(homePage.TournamentSlugs(), sc.config.ExcludedSlugs)
	stats.SkippedSlugs = skipped
	if len(skipped) > 0 {
		utils.Infof("存在非活跃条目 %v,将不会转储", skipped)
	}

	// 首页静态资源
	res, err := DumpStaticAssets(ctx, sc.dumper, sc.site, homePage, batchOptions(sc.config, "首页静态资源"))
	stats.HomeAssets = res.Succeeded
	stats.FailedURLs = append(stats.FailedURLs, res.FailedURLs()...)
	if err != nil {
		return stats, err
	}

	// 赛事
	stats.Tournaments, err = sc.crawlTournaments(ctx, slugs)
	for _, t := range stats.Tournaments {
		stats.FailedURLs = append(stats.FailedURLs, t.FailedURLs...)
	}
	if err != nil {
		return stats, err
	}

	utils.Infof("✅ 成功转储 %d 个赛事, 共 %d 个页面, 耗时 %s",
		len(stats.Tournaments), stats.TotalPages(), time.Since(start).Round(time.Millisecond))
	return stats, nil
}

// crawlTournaments 按列表顺序转储赛事
// abort模式下某个赛事失败后,尚未开始的赛事不再启动,已开始的照常完成
func (sc *SiteCrawler) crawlTournaments(ctx context.Context, slugs []string) ([]models.TournamentStats, error) {
	results := make([]*models.TournamentStats, len(slugs))
	errs := make([]error, len(slugs))
	var aborted atomic.Bool

	var g errgroup.Group
	limit := sc.config.TournamentConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, slug := range slugs {
		i, slug := i, slug
		g.Go(func() error {
			if aborted.Load() {
				utils.Debugf("跳过赛事 %s (前一个赛事失败)", slug)
				return nil
			}

			stats, err := sc.tournaments.Crawl(ctx, models.Tournament{Slug: slug}, sc.config.IncludeStatic)
			results[i] = &stats
			if err != nil {
				errs[i] = err
				utils.Errorf("❌ 赛事 %s 转储失败: %v", slug, err)
				if !sc.config.ContinueOnError {
					aborted.Store(true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	tournaments := make([]models.TournamentStats, 0, len(slugs))
	for _, r := range results {
		if r != nil {
			tournaments = append(tournaments, *r)
		}
	}

	if !sc.config.ContinueOnError {
		for _, err := range errs {
			if err != nil {
				return tournaments, err
			}
		}
	}
	return tournaments, nil
}

// filterSlugs 去掉排除列表中的条目,保持原有顺序
func filterSlugs(slugs, excluded []string) (kept, skipped []string) {
	drop := make(map[string]bool, len(excluded))
	for _, s := range excluded {
		drop[s] = true
	}

	kept = make([]string, 0, len(slugs))
	for _, s := range slugs {
		if drop[s] {
			skipped = append(skipped, s)
			continue
		}
		kept = append(kept, s)
	}
	return kept, skipped
}
