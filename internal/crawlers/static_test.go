package crawlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

// fixedHeaders 固定头部的HeaderProvider
type fixedHeaders http.Header

func (h fixedHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

func newTestStaticFetcher(headers http.Header) *StaticFetcher {
	return NewStaticFetcher(StaticFetcherConfig{
		Timeout:     5 * time.Second,
		Parallelism: 2,
	}, fixedHeaders(headers))
}

func TestStaticFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wudc/":
			if r.Header.Get("Authorization") != "Token abc123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html><body>wudc</body></html>"))
		case "/static/app.js":
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			bw.Write([]byte("console.log('tab');"))
			bw.Close()
			w.Header().Set("Content-Type", "application/javascript")
			w.Header().Set("Content-Encoding", "br")
			w.Write(buf.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := newTestStaticFetcher(http.Header{"Authorization": []string{"Token abc123"}})

	t.Run("携带令牌头部", func(t *testing.T) {
		result, err := fetcher.Fetch(context.Background(), server.URL+"/wudc/")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if result.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d", result.StatusCode)
		}
		if !strings.Contains(result.Text(), "wudc") {
			t.Errorf("响应体错误: %q", result.Text())
		}
		if !strings.HasPrefix(result.ContentType, "text/html") {
			t.Errorf("ContentType = %q", result.ContentType)
		}
	})

	t.Run("brotli响应被解压", func(t *testing.T) {
		result, err := fetcher.Fetch(context.Background(), server.URL+"/static/app.js")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if result.Text() != "console.log('tab');" {
			t.Errorf("解压结果错误: %q", result.Text())
		}
	})

	t.Run("404视为失败", func(t *testing.T) {
		if _, err := fetcher.Fetch(context.Background(), server.URL+"/missing/"); err == nil {
			t.Error("404应该返回错误")
		}
	})

	t.Run("缺少令牌时401视为失败", func(t *testing.T) {
		noToken := newTestStaticFetcher(http.Header{})
		if _, err := noToken.Fetch(context.Background(), server.URL+"/wudc/"); err == nil {
			t.Error("401应该返回错误")
		}
	})

	t.Run("同一URL可以重复抓取", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if _, err := fetcher.Fetch(context.Background(), server.URL+"/wudc/"); err != nil {
				t.Fatalf("第%d次抓取失败: %v", i+1, err)
			}
		}
	})

	t.Run("已取消的context不发请求", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := fetcher.Fetch(ctx, server.URL+"/wudc/"); err == nil {
			t.Error("已取消的context应该返回错误")
		}
	})
}

func TestStaticFetcher_MaxBodySize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exact.css":
			w.Write([]byte(strings.Repeat("a", 16)))
		case "/large.css":
			w.Write([]byte(strings.Repeat("b", 32)))
		case "/chunked.js":
			// 不带Content-Length,只能靠读取的长度识别
			flusher := w.(http.Flusher)
			for i := 0; i < 4; i++ {
				w.Write([]byte(strings.Repeat("c", 8)))
				flusher.Flush()
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewStaticFetcher(StaticFetcherConfig{
		Timeout:     5 * time.Second,
		MaxBodySize: 16,
		Parallelism: 1,
	}, nil)

	t.Run("恰好等于上限", func(t *testing.T) {
		result, err := fetcher.Fetch(context.Background(), server.URL+"/exact.css")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(result.Body) != 16 {
			t.Errorf("len(Body) = %d, want 16", len(result.Body))
		}
	})

	t.Run("超过上限视为失败", func(t *testing.T) {
		if _, err := fetcher.Fetch(context.Background(), server.URL+"/large.css"); err == nil {
			t.Error("超过上限的响应应该返回错误")
		}
	})

	t.Run("分块传输超过上限视为失败", func(t *testing.T) {
		if _, err := fetcher.Fetch(context.Background(), server.URL+"/chunked.js"); err == nil {
			t.Error("超过上限的分块响应应该返回错误")
		}
	})
}

func TestDecompressBody(t *testing.T) {
	plain := []byte("<html>participants</html>")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(plain)
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write(plain)
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		wantErr  bool
	}{
		{"无压缩", "", plain, false},
		{"identity", "identity", plain, false},
		{"gzip压缩数据", "gzip", gz.Bytes(), false},
		{"gzip头部但数据已解压", "gzip", plain, false},
		{"brotli", "br", br.Bytes(), false},
		{"大写编码名", " BR ", br.Bytes(), false},
		{"未知编码原样返回", "zstd", plain, false},
		{"损坏的brotli数据", "br", []byte("not brotli"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressBody(tt.encoding, tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decompressBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, plain) {
				t.Errorf("decompressBody() = %q, want %q", got, plain)
			}
		})
	}
}
