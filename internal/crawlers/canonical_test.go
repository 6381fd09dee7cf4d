package crawlers

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"去掉查询串", "https://example.test/a?x=1", "https://example.test/a"},
		{"去掉片段", "https://example.test/a#top", "https://example.test/a"},
		{"同时去掉", "https://example.test/a/?x=1&y=2#s", "https://example.test/a/"},
		{"空查询串", "https://example.test/a?", "https://example.test/a"},
		{"已规范", "https://example.test/a", "https://example.test/a"},
		{"无法解析原样返回", "http://[::1", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalize(tt.in)
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Canonicalize(got); again != got {
				t.Errorf("Canonicalize 不幂等: %q -> %q", got, again)
			}
		})
	}
}

func TestResolveLink(t *testing.T) {
	const base = "https://example.test/docs/"
	const page = "https://example.test/docs/guide/intro"

	tests := []struct {
		name   string
		href   string
		want   string
		wantOK bool
	}{
		{"相对路径", "setup", "https://example.test/docs/guide/setup", true},
		{"根路径", "/docs/api", "https://example.test/docs/api", true},
		{"上级目录", "../faq?lang=zh#q1", "https://example.test/docs/faq", true},
		{"首尾空白", "  /docs/x  ", "https://example.test/docs/x", true},
		{"前缀外", "/blog/post", "", false},
		{"外部站点", "https://other.test/docs/", "", false},
		{"纯片段指向自身", "#section", "https://example.test/docs/guide/intro", true},
		{"无法解析", "http://[::1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveLink(page, tt.href, base)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolveLink(%q) = (%q, %v), want (%q, %v)", tt.href, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLinkCanonicalizer_NilHref(t *testing.T) {
	c := NewLinkCanonicalizer("https://example.test/")
	if _, ok := c.Resolve("https://example.test/a", nil); ok {
		t.Error("缺失href应返回 ok=false")
	}

	empty := ""
	got, ok := c.Resolve("https://example.test/a?q=1", &empty)
	if !ok || got != "https://example.test/a" {
		t.Errorf("空href应解析为页面自身: (%q, %v)", got, ok)
	}
}
