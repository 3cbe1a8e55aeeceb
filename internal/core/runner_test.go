package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/tabbydump/internal/config"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

func newTestRunner(t *testing.T, site *fakeSite) (*Runner, string) {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		Request: config.RequestConfig{MaxActive: 2},
		Crawl:   testCrawlConfig(),
		Output:  config.OutputConfig{BaseDir: base, Report: true},
	}
	r := newRunner(cfg, site)
	t.Cleanup(func() { r.Close() })
	return r, base
}

func TestRunner_Run(t *testing.T) {
	t.Run("URL带赛事时只转储该赛事并包含静态资源", func(t *testing.T) {
		site := newFakeSite()
		addTournament(site, "wudc")
		addStatic(site)

		r, base := newTestRunner(t, site)
		report, err := r.Run(context.Background(), "tab.example.com/wudc")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if len(report.Tournaments) != 1 || report.Tournaments[0].StaticAssets != 2 {
			t.Errorf("Tournaments = %+v", report.Tournaments)
		}
		if report.TotalPages != 8 {
			t.Errorf("TotalPages = %d, want 8", report.TotalPages)
		}
		if site.countFetched(testBase+"/") != 0 {
			t.Error("赛事模式不应抓取站点首页")
		}
		if _, err := os.Stat(filepath.Join(base, "tab.example.com", "wudc", "index.html")); err != nil {
			t.Errorf("缺少赛事首页: %v", err)
		}

		reports, _ := filepath.Glob(filepath.Join(base, utils.ReportsDirName, "tab.example.com_*.json"))
		if len(reports) != 1 {
			t.Fatalf("应生成一个报告, 得到 %v", reports)
		}
		saved, err := utils.LoadReport(reports[0])
		if err != nil {
			t.Fatalf("LoadReport() error = %v", err)
		}
		if saved.RunID != report.RunID || saved.TargetURL != "tab.example.com/wudc" {
			t.Errorf("保存的报告 = %+v", saved)
		}
	})

	t.Run("整站模式", func(t *testing.T) {
		site := newFakeSite()
		site.add(testBase+"/", homeHTML("alpha", "inactive"))
		addStatic(site)
		addTournament(site, "alpha")

		r, _ := newTestRunner(t, site)
		report, err := r.Run(context.Background(), "http://tab.example.com")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.HomeAssets != 2 || len(report.Tournaments) != 1 {
			t.Errorf("report = %+v", report)
		}
		// 首页1 + 资源2 + alpha(1 + 3 + 2)
		if report.TotalPages != 9 {
			t.Errorf("TotalPages = %d, want 9", report.TotalPages)
		}
	})

	t.Run("无效URL在网络请求之前返回", func(t *testing.T) {
		site := newFakeSite()
		r, _ := newTestRunner(t, site)

		if _, err := r.Run(context.Background(), "ftp://tab.example.com"); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("期望 ErrInvalidURL, 得到 %v", err)
		}
		if _, err := r.Run(context.Background(), ""); !errors.Is(err, ErrNoURL) {
			t.Errorf("期望 ErrNoURL, 得到 %v", err)
		}
		if n := len(site.fetchedURLs()); n != 0 {
			t.Errorf("不应发出请求, 得到 %d 个", n)
		}
	})

	t.Run("输出目录创建失败", func(t *testing.T) {
		site := newFakeSite()
		r, base := newTestRunner(t, site)
		if err := os.WriteFile(filepath.Join(base, "tab.example.com"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := r.Run(context.Background(), "tab.example.com"); err == nil {
			t.Error("目录创建失败应该返回错误")
		}
		if n := len(site.fetchedURLs()); n != 0 {
			t.Errorf("不应发出请求, 得到 %d 个", n)
		}
	})
}
