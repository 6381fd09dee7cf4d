package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

func staticConfig() models.CrawlConfig {
	return models.CrawlConfig{PageTimeout: 5 * time.Second}
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a href="/other">x</a><p>%s</p></body></html>`, r.Header.Get("X-Harvest"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page?from=moved", http.StatusFound)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("   "))
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("<p>brotli body</p>"))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/deflate", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
		fw.Write([]byte("<p>deflate body</p>"))
		fw.Close()
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(buf.Bytes())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticFetcher_Fetch(t *testing.T) {
	srv := newTestSite(t)
	fetcher := NewStaticFetcher(staticConfig(), staticHeaders{"X-Harvest": []string{"header-ok"}})

	tests := []struct {
		name      string
		path      string
		wantURL   string
		wantBody  string
		wantErr   error
		wantStage FetchStage
	}{
		{name: "普通页面并带上自定义头", path: "/page", wantURL: "/page", wantBody: "header-ok"},
		{name: "重定向报告最终URL", path: "/moved", wantURL: "/page", wantBody: `href="/other"`},
		{name: "brotli解码", path: "/br", wantURL: "/br", wantBody: "brotli body"},
		{name: "deflate解码", path: "/deflate", wantURL: "/deflate", wantBody: "deflate body"},
		{name: "404失败", path: "/missing", wantStage: StageNavigate},
		{name: "空页面失败", path: "/empty", wantErr: ErrEmptyDocument, wantStage: StageExtract},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := fetcher.Fetch(context.Background(), srv.URL+tt.path, nil)

			if tt.wantStage != "" {
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("Fetch() error = %v, want *FetchError", err)
				}
				if fe.Stage != tt.wantStage {
					t.Errorf("Stage = %s, want %s", fe.Stage, tt.wantStage)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if doc.URL != srv.URL+tt.wantURL {
				t.Errorf("URL = %q, want %q", doc.URL, srv.URL+tt.wantURL)
			}
			if doc.RequestURL != srv.URL+tt.path {
				t.Errorf("RequestURL = %q", doc.RequestURL)
			}
			if !strings.Contains(doc.HTML, tt.wantBody) {
				t.Errorf("HTML = %q, 缺少 %q", doc.HTML, tt.wantBody)
			}
		})
	}
}

func TestStaticFetcher_CancelledContext(t *testing.T) {
	srv := newTestSite(t)
	fetcher := NewStaticFetcher(staticConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fetcher.Fetch(ctx, srv.URL+"/page", nil); err == nil {
		t.Fatal("已取消的context应导致抓取失败")
	}
}

func TestDecompressResponse(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		body     []byte
		want     string
		wantErr  bool
	}{
		{"无编码", "", []byte("plain"), "plain", false},
		{"gzip已由colly处理", "gzip", []byte("already"), "already", false},
		{"未知编码原样返回", "zstd", []byte("raw"), "raw", false},
		{"损坏的deflate", "deflate", []byte{0x07}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decompressResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("decompressResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}
