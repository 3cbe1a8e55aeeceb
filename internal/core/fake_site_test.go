package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// fakeSite 内存中的站点,按完整URL返回页面
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	delay   map[string]time.Duration
	fetched []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages: make(map[string]string),
		fail:  make(map[string]error),
		delay: make(map[string]time.Duration),
	}
}

func (f *fakeSite) add(rawURL, body string) {
	f.pages[rawURL] = body
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	body, ok := f.pages[rawURL]
	err := f.fail[rawURL]
	delay := f.delay[rawURL]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("Not Found: %s", rawURL)
	}
	return &models.PageResult{
		SourceURL:   rawURL,
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(body),
	}, nil
}

// fetchedURLs 返回抓取记录的副本
func (f *fakeSite) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// countFetched 统计被抓取的次数
func (f *fakeSite) countFetched(rawURL string) int {
	n := 0
	for _, u := range f.fetchedURLs() {
		if u == rawURL {
			n++
		}
	}
	return n
}

const testBase = "http://tab.example.com"

var testSite = models.Site{Protocol: "http://", Host: "tab.example.com"}

func homeHTML(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head>
<link rel="stylesheet" href="/static/css/app.css">
<script src="/static/js/app.js"></script>
</head><body>
<nav><ul class="navbar-nav"><li><a href="/accounts/login/">登录</a></li></ul></nav>
<div class="list-group mt-2">`)
	for _, s := range slugs {
		fmt.Fprintf(&b, `<a class="list-group-item" href="/%s/">%s</a>`, s, s)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func tournamentIndexHTML(slug string) string {
	return fmt.Sprintf(`<html><head>
<link rel="stylesheet" href="/static/css/app.css">
<script src="/static/js/app.js"></script>
<script src=""></script>
</head><body>
<ul class="navbar-nav">
  <li><a href="#">菜单</a></li>
  <li><a href="/%[1]s/participants/list/">参赛者</a></li>
  <li><a href="/%[1]s/results/">结果</a></li>
  <li><a href="/%[1]s/results/">结果(重复)</a></li>
  <li><a href="/%[1]s/feedback/progress/">反馈进度</a></li>
  <li><a href="/accounts/logout/">退出</a></li>
</ul></body></html>`, slug)
}

// participantHTML 内嵌表格页面,每个参数是一行的链接
func participantHTML(links ...string) string {
	rows := make([]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, fmt.Sprintf(`[{"text":"名称","popover":{"content":[{"text":"详情"},{"text":"查看","link":%q}]}},{"text":"其他"}]`, l))
	}
	return `<html><body><div id="app"></div><script>
window.vueData = {"tablesData": [{"head": [], "data": [` + strings.Join(rows, ",") + `]}]};
</script></body></html>`
}

// addTournament 向站点中加入一个完整的赛事
// participants/list 页面引用 [A, B, A],feedback/progress 页面引用 [C]
func addTournament(site *fakeSite, slug string) {
	site.add(testBase+"/"+slug+"/", tournamentIndexHTML(slug))
	site.add(testBase+"/"+slug+"/participants/list/", participantHTML(
		"/"+slug+"/participants/team/1/",
		"/"+slug+"/participants/team/2/",
		"/"+slug+"/participants/team/1/",
	))
	site.add(testBase+"/"+slug+"/results/", "<html><body>results</body></html>")
	site.add(testBase+"/"+slug+"/feedback/progress/", participantHTML("/"+slug+"/participants/adjudicator/9/"))
	site.add(testBase+"/"+slug+"/participants/team/1/", "team 1")
	site.add(testBase+"/"+slug+"/participants/team/2/", "team 2")
	site.add(testBase+"/"+slug+"/participants/adjudicator/9/", "adj 9")
}

func addStatic(site *fakeSite) {
	site.add(testBase+"/static/css/app.css", "body{}")
	site.add(testBase+"/static/js/app.js", "console.log(1)")
}

// testCrawlConfig 与默认配置一致,但不显示进度条
func testCrawlConfig() models.CrawlConfig {
	return models.CrawlConfig{
		Mode:                  models.ModeStatic,
		TournamentConcurrency: 1,
		PageConcurrency:       0,
		ContinueOnError:       true,
		ParticipantMarker:     "vueData",
		ParticipantSuffixes:   []string{"/participants/list/", "/feedback/progress/"},
		ExcludedSlugs:         []string{"inactive"},
		ShowProgress:          false,
	}
}
