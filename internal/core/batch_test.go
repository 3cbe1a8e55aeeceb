package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// scriptedRunner 按URL返回预设结果
type scriptedRunner struct {
	fail  map[string]error
	calls []string
}

func (s *scriptedRunner) Run(ctx context.Context, rawURL string) (*models.DumpReport, error) {
	s.calls = append(s.calls, rawURL)
	report := &models.DumpReport{TargetURL: rawURL, TotalPages: 3}
	return report, s.fail[rawURL]
}

func TestBatchCrawler_CrawlBatch(t *testing.T) {
	urls := []string{"http://a.example.com", "http://b.example.com", "http://c.example.com"}

	t.Run("全部成功", func(t *testing.T) {
		runner := &scriptedRunner{}
		bc := &BatchCrawler{runner: runner, continueOnErr: true}

		summary, err := bc.CrawlBatch(context.Background(), urls)
		if err != nil {
			t.Fatalf("CrawlBatch() error = %v", err)
		}
		if summary.SuccessCount != 3 || summary.FailCount != 0 || summary.TotalPages != 9 {
			t.Errorf("summary = %+v", summary)
		}
		if !reflect.DeepEqual(runner.calls, urls) {
			t.Errorf("站点应按顺序处理: %v", runner.calls)
		}
	})

	t.Run("continue-on-error", func(t *testing.T) {
		runner := &scriptedRunner{fail: map[string]error{urls[1]: errors.New("连接被拒绝")}}
		bc := &BatchCrawler{runner: runner, continueOnErr: true}

		summary, err := bc.CrawlBatch(context.Background(), urls)
		if err != nil {
			t.Fatalf("CrawlBatch() error = %v", err)
		}
		if summary.SuccessCount != 2 || summary.FailCount != 1 || len(runner.calls) != 3 {
			t.Errorf("summary = %+v, calls = %v", summary, runner.calls)
		}
		if summary.Results[1].Success || summary.Results[1].Error == nil {
			t.Errorf("第二个结果应为失败: %+v", summary.Results[1])
		}
	})

	t.Run("遇到失败停止", func(t *testing.T) {
		runner := &scriptedRunner{fail: map[string]error{urls[0]: ErrInvalidURL}}
		bc := &BatchCrawler{runner: runner, continueOnErr: false}

		summary, err := bc.CrawlBatch(context.Background(), urls)
		if err != nil {
			t.Fatalf("CrawlBatch() error = %v", err)
		}
		if len(runner.calls) != 1 || summary.FailCount != 1 {
			t.Errorf("calls = %v, summary = %+v", runner.calls, summary)
		}
		if !errors.Is(summary.Results[0].Error, ErrInvalidURL) {
			t.Errorf("应保留底层错误: %v", summary.Results[0].Error)
		}
	})

	t.Run("等待间隔时取消", func(t *testing.T) {
		runner := &scriptedRunner{}
		bc := &BatchCrawler{runner: runner, batchDelay: time.Hour, continueOnErr: true}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := bc.CrawlBatch(ctx, urls)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("期望 DeadlineExceeded, 得到 %v", err)
		}
		if len(runner.calls) != 1 {
			t.Errorf("calls = %v", runner.calls)
		}
	})
}
