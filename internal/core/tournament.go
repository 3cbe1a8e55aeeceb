package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/crawlers"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

// TournamentCrawler 转储单个赛事: 首页、导航核心页、参赛者页
type TournamentCrawler struct {
	dumper *Dumper
	site   models.Site
	config models.CrawlConfig
}

// NewTournamentCrawler 创建赛事爬取器
func NewTournamentCrawler(dumper *Dumper, site models.Site, config models.CrawlConfig) *TournamentCrawler {
	if config.ParticipantMarker == "" {
		config.ParticipantMarker = crawlers.DefaultParticipantMarker
	}
	return &TournamentCrawler{
		dumper: dumper,
		site:   site,
		config: config,
	}
}

// Crawl 转储一个赛事
// 执行流程:
//  1. 转储赛事首页并解析
//  2. 提取主导航链接(跳过占位锚点和账户管理链接)
//  3. 可选: 转储首页引用的静态资源
//  4. 并发转储所有核心页,保留参赛者来源候选页的响应体
//  5. 按导航顺序依次检查候选页,第一个能解码出表格的页面胜出
//  6. 并发转储参赛者页(链接已按首次出现去重)
//
// 首页失败总是返回错误;批内失败按 ContinueOnError 处理
func (tc *TournamentCrawler) Crawl(ctx context.Context, t models.Tournament, includeStatic bool) (stats models.TournamentStats, err error) {
	start := time.Now()
	stats.Slug = t.Slug
	defer func() {
		stats.Duration = time.Since(start)
	}()

	utils.Infof("🏆 = %s @ %s =", t.Slug, tc.site.Host)

	// 1. 赛事首页
	indexURL := tc.site.URL(t.IndexPath())
	utils.Info("转储赛事首页...")
	indexResult, err := tc.dumper.Dump(ctx, indexURL)
	if err != nil {
		stats.FailedURLs = append(stats.FailedURLs, indexURL)
		return stats, err
	}
	stats.IndexPages = 1

	indexPage, err := crawlers.ParsePage(indexResult)
	if err != nil {
		return stats, fmt.Errorf("解析赛事首页失败: %w", err)
	}

	// 2. 导航链接
	corePaths := uniquePaths(indexPage.NavLinks())

	// 3. 静态资源
	if includeStatic {
		res, err := DumpStaticAssets(ctx, tc.dumper, tc.site, indexPage, batchOptions(tc.config, "静态资源"))
		stats.StaticAssets = res.Succeeded
		stats.FailedURLs = append(stats.FailedURLs, res.FailedURLs()...)
		if err != nil {
			return stats, err
		}
	}

	// 4. 核心页
	utils.Infof("📄 转储 %d 个核心页面...", len(corePaths))
	candidates := make([]*models.PageResult, len(corePaths))
	coreURLs := make([]string, len(corePaths))
	for i, p := range corePaths {
		coreURLs[i] = tc.site.URL(p)
	}

	res, err := dumpBatch(ctx, tc.dumper, coreURLs, batchOptions(tc.config, "核心页面"), func(i int, result *models.PageResult) {
		if tc.isParticipantSource(corePaths[i]) {
			candidates[i] = result
		}
	})
	stats.CorePages = res.Succeeded
	stats.FailedURLs = append(stats.FailedURLs, res.FailedURLs()...)
	if err != nil {
		return stats, err
	}

	// 5. 参赛者来源
	links, sourcePath, found := tc.findParticipantLinks(corePaths, candidates)
	stats.ParticipantFound = found

	// 6. 参赛者页
	if found {
		utils.Infof("👥 从 %s 找到 %d 个参赛者页面,开始转储...", sourcePath, len(links))
		participantURLs := make([]string, 0, len(links))
		for _, link := range links {
			participantURLs = append(participantURLs, tc.site.URL(link.URL))
		}

		res, err := dumpBatch(ctx, tc.dumper, participantURLs, batchOptions(tc.config, "参赛者页面"), nil)
		stats.ParticipantPages = res.Succeeded
		stats.FailedURLs = append(stats.FailedURLs, res.FailedURLs()...)
		if err != nil {
			return stats, err
		}
	} else {
		utils.Warn("未找到参赛者页面,请确认赛事已开启参赛者列表或反馈进度页面")
	}

	utils.Infof("✅ 成功转储 %d 个页面: 赛事 '%s' (%s) → %s, 耗时 %s",
		stats.TotalPages(), t.Slug, tc.site.BaseURL(), tc.dumper.Root(), time.Since(start).Round(time.Millisecond))
	return stats, nil
}

// isParticipantSource 路径(忽略查询串)以参赛者来源后缀结尾
func (tc *TournamentCrawler) isParticipantSource(p string) bool {
	p, _, _ = strings.Cut(p, "?")
	for _, suffix := range tc.config.ParticipantSuffixes {
		if suffix != "" && strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// findParticipantLinks 按导航顺序检查候选页,返回第一个可解码表格中的链接
// 结果与核心页的完成顺序无关
func (tc *TournamentCrawler) findParticipantLinks(paths []string, candidates []*models.PageResult) ([]models.ParticipantLink, string, bool) {
	for i, result := range candidates {
		if result == nil {
			continue
		}

		page, err := crawlers.ParsePage(result)
		if err != nil {
			utils.Debugf("候选页解析失败 %s: %v", paths[i], err)
			continue
		}

		links, ok := crawlers.ExtractParticipantLinks(page, tc.config.ParticipantMarker)
		if !ok {
			utils.Debugf("候选页中没有参赛者表格: %s", paths[i])
			continue
		}
		return links, paths[i], true
	}
	return nil, "", false
}

// uniquePaths 按首次出现顺序去重
func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
