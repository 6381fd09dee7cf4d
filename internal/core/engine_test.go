package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/crawlers"
)

// hangingEngine 指定URL的渲染一直阻塞到ctx结束, 其余URL立即返回
func hangingEngine(timeout time.Duration, hang string) *Engine {
	return &Engine{
		render: func(ctx context.Context, rawURL string) (*crawlers.Document, error) {
			if rawURL == hang {
				<-ctx.Done()
				return nil, &crawlers.FetchError{URL: rawURL, Stage: crawlers.StageStabilize, Err: ctx.Err()}
			}
			return &crawlers.Document{RequestURL: rawURL, URL: rawURL, HTML: "<p>正常</p>"}, nil
		},
		pageTimeout: timeout,
	}
}

func TestEngine_RenderTimeout(t *testing.T) {
	e := hangingEngine(50*time.Millisecond, "https://example.test/slow")

	done := make(chan error, 1)
	go func() {
		_, err := ScrapePage(context.Background(), e.Render, "https://example.test/slow")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, crawlers.ErrPageTimeout) {
			t.Errorf("ScrapePage() error = %v, 期望 ErrPageTimeout", err)
		}
		var fe *crawlers.FetchError
		if !errors.As(err, &fe) || fe.Stage != crawlers.StageStabilize {
			t.Errorf("应保留原始抓取错误, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("单页超时未生效, ScrapePage 一直阻塞")
	}
}

func TestEngine_RenderTimeoutKeepsCollecting(t *testing.T) {
	e := hangingEngine(50*time.Millisecond, "https://example.test/slow")

	contents, summary, err := NewContextCollector(e.Render, 0).Collect(context.Background(), map[string]string{
		"a_慢页面": "https://example.test/slow",
		"b_正常":  "https://example.test/ok",
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if summary.FailCount != 1 || summary.SuccessCount != 1 {
		t.Errorf("成功 %d 失败 %d, 期望各1", summary.SuccessCount, summary.FailCount)
	}
	if contents["b_正常"] != "正常" {
		t.Errorf("超时之后的页面应继续抓取, contents = %v", contents)
	}
	if !errors.Is(summary.Results[0].Error, crawlers.ErrPageTimeout) {
		t.Errorf("第一个结果应为超时, got %v", summary.Results[0].Error)
	}
}

func TestEngine_RenderWithoutTimeout(t *testing.T) {
	e := hangingEngine(0, "https://example.test/slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Render(ctx, "https://example.test/slow")
	if errors.Is(err, crawlers.ErrPageTimeout) {
		t.Errorf("外部取消不应记为单页超时: %v", err)
	}
}
