package crawlers

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/tabbydump/internal/models"
	"golang.org/x/net/html"
)

const (
	// NavLinkSelector 赛事主导航中的链接
	NavLinkSelector = "ul.navbar-nav a"

	// TournamentListSelector 站点首页的赛事列表
	TournamentListSelector = ".list-group.mt-2 a"

	// AssetSelector 引用静态资源的元素
	AssetSelector = "link, script"

	// AccountsPrefix 账户管理页面,不属于赛事内容
	AccountsPrefix = "/accounts"
)

// Page 已解析的HTML页面
// 所有返回的链接都是相对于站点根的路径(可带查询串),外站链接一律丢弃
type Page struct {
	doc  *goquery.Document
	base *url.URL
}

// ParsePage 解析抓取结果
func ParsePage(result *models.PageResult) (*Page, error) {
	base, err := url.Parse(result.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("无效的页面URL [%s]: %w", result.SourceURL, err)
	}

	root, err := html.Parse(bytes.NewReader(result.Body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败 [%s]: %w", result.SourceURL, err)
	}

	return &Page{
		doc:  goquery.NewDocumentFromNode(root),
		base: base,
	}, nil
}

// URL 页面自身的URL
func (p *Page) URL() string {
	return p.base.String()
}

// NavLinks 主导航中的页面链接,按文档顺序
// 跳过占位锚点(#...)、javascript:链接和账户管理链接
func (p *Page) NavLinks() []string {
	links := make([]string, 0)
	p.doc.Find(NavLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		path, ok := p.resolvePath(href)
		if !ok || strings.HasPrefix(path, AccountsPrefix) {
			return
		}
		links = append(links, path)
	})
	return links
}

// AssetPaths link元素的href和script元素的src
// 不去重: 同一资源被引用两次就转储两次
func (p *Page) AssetPaths() []string {
	assets := make([]string, 0)
	p.doc.Find(AssetSelector).Each(func(_ int, s *goquery.Selection) {
		attr := "src"
		if goquery.NodeName(s) == "link" {
			attr = "href"
		}

		value, exists := s.Attr(attr)
		if !exists || strings.TrimSpace(value) == "" {
			return
		}

		if path, ok := p.resolvePath(value); ok {
			assets = append(assets, path)
		}
	})
	return assets
}

// TournamentSlugs 站点首页赛事列表中的slug,按文档顺序去重
// 只保留单段路径(/slug/),管理类多段链接被忽略
func (p *Page) TournamentSlugs() []string {
	seen := make(map[string]bool)
	slugs := make([]string, 0)
	p.doc.Find(TournamentListSelector).Each(func(_ int, s *goquery.Selection) {
		path, ok := p.resolvePath(s.AttrOr("href", ""))
		if !ok || strings.Contains(path, "?") {
			return
		}

		slug := strings.Trim(path, "/")
		if slug == "" || strings.Contains(slug, "/") || seen[slug] {
			return
		}
		seen[slug] = true
		slugs = append(slugs, slug)
	})
	return slugs
}

// ScriptContaining 返回第一个内容包含marker的script元素文本
func (p *Page) ScriptContaining(marker string) (string, bool) {
	var found string
	var ok bool
	p.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, marker) {
			found, ok = text, true
			return false
		}
		return true
	})
	return found, ok
}

// resolvePath 按页面URL解析引用,返回站内路径
func (p *Page) resolvePath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	resolved := p.base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(resolved.Host, p.base.Host) {
		return "", false
	}

	path := resolved.EscapedPath()
	if path == "" {
		path = "/"
	}
	if resolved.RawQuery != "" {
		path += "?" + resolved.RawQuery
	}
	return path, true
}
