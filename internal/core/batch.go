package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

// siteRunner 转储单个站点URL
type siteRunner interface {
	Run(ctx context.Context, rawURL string) (*models.DumpReport, error)
}

// BatchCrawler 批量转储器 (--url-file)
// 站点之间严格顺序执行,共用同一个Runner和令牌
type BatchCrawler struct {
	runner        siteRunner
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个URL的转储结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Report      *models.DumpReport
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量转储摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalPages    int
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCrawler 创建批量转储器
func NewBatchCrawler(runner *Runner, batchDelay int, continueOnErr bool) *BatchCrawler {
	return &BatchCrawler{
		runner:        runner,
		batchDelay:    time.Duration(batchDelay) * time.Second,
		continueOnErr: continueOnErr,
	}
}

// CrawlBatch 依次转储URL列表
// continueOnErr为false时,第一个失败的站点之后停止
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, urls []string) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量转储: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}

	startTime := time.Now()

	for i, targetURL := range urls {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(urls))
		utils.Infof("目标URL: %s", targetURL)

		result := bc.crawlSingleURL(ctx, targetURL)
		summary.Results = append(summary.Results, result)

		if result.Report != nil {
			summary.TotalPages += result.Report.TotalPages
		}

		if result.Success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
			utils.Errorf("❌ 转储失败: %v", result.Error)

			if !bc.continueOnErr {
				utils.Warn("批量转储中止 (--continue-on-error=false)")
				break
			}
		}

		// 最后一个URL不需要延迟
		if i < len(urls)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个URL...", bc.batchDelay.Seconds())
			select {
			case <-time.After(bc.batchDelay):
			case <-ctx.Done():
				summary.TotalDuration = time.Since(startTime).Seconds()
				return summary, ctx.Err()
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()

	bc.printSummary(summary)

	return summary, nil
}

// crawlSingleURL 转储单个URL
func (bc *BatchCrawler) crawlSingleURL(ctx context.Context, targetURL string) BatchResult {
	result := BatchResult{
		URL:         targetURL,
		ProcessedAt: time.Now(),
	}

	startTime := time.Now()
	report, err := bc.runner.Run(ctx, targetURL)
	result.Report = report
	result.Duration = time.Since(startTime).Seconds()

	if err != nil {
		result.Error = fmt.Errorf("转储失败: %w", err)
		return result
	}

	result.Success = true
	return result
}

// printSummary 打印批量转储摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量转储摘要")
	utils.Info("==================================================")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 总页面数: %d", summary.TotalPages)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的URL:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
