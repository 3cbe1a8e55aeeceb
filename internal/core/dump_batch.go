package core

import (
	"context"
	"errors"
	"sync"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"golang.org/x/sync/errgroup"
)

// BatchOptions 一批并发转储的选项
type BatchOptions struct {
	// Concurrency 同时运行的goroutine上限,0表示不限(仍受RequestManager限流)
	Concurrency int

	// ContinueOnError 为false时,批次结束后返回第一个失败(按提交顺序)
	ContinueOnError bool

	// ShowProgress 是否显示进度条
	ShowProgress bool

	// Description 进度条描述
	Description string
}

// batchOptions 由爬取配置生成批次选项
func batchOptions(config models.CrawlConfig, description string) BatchOptions {
	return BatchOptions{
		Concurrency:     config.PageConcurrency,
		ContinueOnError: config.ContinueOnError,
		ShowProgress:    config.ShowProgress,
		Description:     description,
	}
}

// dumpBatch 并发转储一批URL
//
// 两种模式下所有兄弟任务都会执行完毕,不会被取消:
//   - continue-on-error: 失败记录在BatchResult.Failed中,返回nil
//   - abort: 返回第一个失败的 *models.DumpError
//
// onResult在每个成功的转储后调用,可能被并发调用,但每个下标只调用一次
func dumpBatch(
	ctx context.Context,
	dumper *Dumper,
	urls []string,
	opts BatchOptions,
	onResult func(i int, result *models.PageResult),
) (models.BatchResult, error) {
	result := models.BatchResult{Attempted: len(urls)}
	if len(urls) == 0 {
		return result, nil
	}

	bar := utils.NewProgressBar(len(urls), opts.Description, opts.ShowProgress)
	defer bar.Finish()

	failures := make([]*models.DumpError, len(urls))
	var mu sync.Mutex
	succeeded := 0

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			defer bar.Add(1)

			res, err := dumper.Dump(ctx, u)
			if err != nil {
				var dumpErr *models.DumpError
				if !errors.As(err, &dumpErr) {
					dumpErr = &models.DumpError{URL: u, Stage: models.StageFetch, Cause: err}
				}
				failures[i] = dumpErr
				return nil
			}

			mu.Lock()
			succeeded++
			mu.Unlock()

			if onResult != nil {
				onResult(i, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Succeeded = succeeded
	for _, f := range failures {
		if f != nil {
			result.Failed = append(result.Failed, f)
		}
	}

	if len(result.Failed) > 0 {
		utils.Warnf("⚠️  %s: %d/%d 个资源转储失败", opts.Description, len(result.Failed), result.Attempted)
		if !opts.ContinueOnError {
			return result, result.Failed[0]
		}
	}
	return result, nil
}
