package core

import (
	"context"

	"github.com/RecoveryAshes/tabbydump/internal/crawlers"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

// DumpStaticAssets 并发转储页面中link/script引用的静态资源
// 不去重;BatchResult.Attempted即尝试转储的数量
func DumpStaticAssets(ctx context.Context, dumper *Dumper, site models.Site, page *crawlers.Page, opts BatchOptions) (models.BatchResult, error) {
	paths := page.AssetPaths()

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, site.URL(p))
	}

	utils.Infof("📦 转储 %d 个静态资源...", len(urls))
	return dumpBatch(ctx, dumper, urls, opts, nil)
}
