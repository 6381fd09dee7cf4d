package crawlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
	"github.com/RecoveryAshes/SiteHarvest/internal/output"
	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// fakePage 模拟站点上的一个页面
type fakePage struct {
	links    []string // href
	redirect string   // 拦截页同意后跳转到的URL
	err      error
	block    bool // 阻塞直到ctx结束
}

// fakeSite 按URL返回预设页面的抓取器
// 有redirect的页面总是跟随跳转,不参考seen
type fakeSite struct {
	pages map[string]fakePage

	started     chan string
	interrupted []string

	mu      sync.Mutex
	fetched map[string]int

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{
		pages:   pages,
		started: make(chan string, 64),
		fetched: make(map[string]int),
	}
}

func (s *fakeSite) Fetch(ctx context.Context, rawURL string, _ func(string) bool) (*Document, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	s.mu.Lock()
	s.fetched[rawURL]++
	s.mu.Unlock()
	s.started <- rawURL

	page, ok := s.pages[rawURL]
	if !ok {
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: errors.New("404")}
	}
	if page.block {
		<-ctx.Done()
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: ctx.Err()}
	}
	if page.err != nil {
		return nil, &FetchError{URL: rawURL, Stage: StageNavigate, Err: page.err}
	}

	// 给并发的兄弟任务留出重叠的时间
	time.Sleep(2 * time.Millisecond)

	final := rawURL
	if page.redirect != "" {
		final = page.redirect
		page = s.pages[final]
	}
	return &Document{RequestURL: rawURL, URL: final, HTML: renderPage(final, page.links)}, nil
}

func (s *fakeSite) InterruptedURLs() []string {
	return s.interrupted
}

func (s *fakeSite) fetchCount(u string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched[u]
}

func renderPage(u string, links []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>%s</h1>", u)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// memWriter 在内存中记录写入的产物来源
type memWriter struct {
	mu      sync.Mutex
	sources []string
	failFor string
}

func (w *memWriter) Write(_, sourceURL string) error {
	if sourceURL == w.failFor {
		return errors.New("磁盘已满")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sources = append(w.sources, sourceURL)
	return nil
}

func (w *memWriter) sorted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]string(nil), w.sources...)
	sort.Strings(out)
	return out
}

func u(path string) string {
	return testPrefix + path
}

func freshTracker() *Tracker {
	return NewTracker(models.NewFreshState(models.NewCrawlTarget(u("root"), testPrefix)))
}

func TestController_ExampleScenario(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/a", "/b", "https://other.test/x"}},
		u("a"):    {links: []string{"/root", "/b"}},
		u("b"):    {links: []string{"/a?ref=b"}},
	})

	dir := t.TempDir()
	writer, err := output.NewWriter(output.Options{BaseDir: dir, JSON: true})
	if err != nil {
		t.Fatal(err)
	}

	tracker := freshTracker()
	ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: 2, PageTimeout: 5 * time.Second})

	var claimed []int
	ctrl.OnBatch = func(r BatchReport) { claimed = append(claimed, r.Claimed) }

	outcome, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome != OutcomeDone {
		t.Fatalf("outcome = %s, want done", outcome)
	}

	if !reflect.DeepEqual(claimed, []int{1, 2}) {
		t.Errorf("每批认领数 = %v, want [1 2]", claimed)
	}
	if got, want := tracker.Visited(), []string{u("a"), u("b"), u("root")}; !reflect.DeepEqual(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
	if tracker.FrontierSize() != 0 || tracker.FailedCount() != 0 {
		t.Errorf("frontier=%d failed=%d", tracker.FrontierSize(), tracker.FailedCount())
	}
	if ctrl.Batches() != 2 || ctrl.Processed() != 3 {
		t.Errorf("batches=%d processed=%d", ctrl.Batches(), ctrl.Processed())
	}

	var sources []string
	for i := 1; i <= 3; i++ {
		var rec output.PageRecord
		if err := utils.ReadJSONFile(filepath.Join(dir, "json_docs", fmt.Sprintf("page_%d.json", i)), &rec); err != nil {
			t.Fatal(err)
		}
		sources = append(sources, rec.Source)
	}
	sort.Strings(sources)
	if want := []string{u("a"), u("b"), u("root")}; !reflect.DeepEqual(sources, want) {
		t.Errorf("JSON来源 = %v, want %v", sources, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "json_docs", "page_4.json")); !os.IsNotExist(err) {
		t.Error("不应写出第4个产物")
	}
}

func TestController_FailureIsolation(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/a", "/b", "/missing"}},
		u("a"):    {err: errors.New("net::ERR_CONNECTION_RESET\n详细信息")},
		u("b"):    {links: []string{"/c"}},
		u("c"):    {},
	})
	writer := &memWriter{failFor: u("c")}

	tracker := freshTracker()
	ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: 3})

	outcome, err := ctrl.Run(context.Background())
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("Run() = %s, %v", outcome, err)
	}

	failed := tracker.Failed()
	var failedURLs []string
	for _, f := range failed {
		failedURLs = append(failedURLs, f.URL)
		if strings.Contains(f.Error, "\n") {
			t.Errorf("失败信息应折叠换行: %q", f.Error)
		}
	}
	if want := []string{u("a"), u("c"), u("missing")}; !reflect.DeepEqual(failedURLs, want) {
		t.Errorf("失败集合 = %v, want %v", failedURLs, want)
	}
	if got := writer.sorted(); !reflect.DeepEqual(got, []string{u("b"), u("root")}) {
		t.Errorf("产物来源 = %v", got)
	}
	if ctrl.FailedPages() != 3 || ctrl.Processed() != 2 {
		t.Errorf("failed=%d processed=%d", ctrl.FailedPages(), ctrl.Processed())
	}
	if len(tracker.InFlight()) != 0 {
		t.Errorf("运行结束后仍有在途目标: %v", tracker.InFlight())
	}
}

func TestController_InterstitialRedirect(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"):        {links: []string{"/a", "/b"}},
		u("a"):           {},
		u("b"):           {redirect: u("b-real")},
		u("b-real"):      {links: []string{"/a", "/b-real/more"}},
		u("b-real/more"): {},
	})
	writer := &memWriter{}
	tracker := freshTracker()
	ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: 2})

	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !tracker.IsVisited(u("b-real")) {
		t.Error("跳转后的真实URL应被认领")
	}
	got := writer.sorted()
	want := []string{u("a"), u("b-real"), u("b-real/more"), u("root")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("产物来源 = %v, want %v", got, want)
	}
	if site.fetchCount(u("b-real")) != 0 {
		t.Error("真实URL已被认领,不应再单独抓取")
	}
}

func TestController_RedirectToSameTargetWritesOnce(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/x", "/y"}},
		u("x"):    {redirect: u("z")},
		u("y"):    {redirect: u("z")},
		u("z"):    {},
	})
	writer := &memWriter{}
	ctrl := NewController(freshTracker(), site, writer, ControllerConfig{Cap: 2})

	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := writer.sorted(); !reflect.DeepEqual(got, []string{u("root"), u("z")}) {
		t.Errorf("产物来源 = %v", got)
	}
}

func TestController_RedirectOutsidePrefix(t *testing.T) {
	const landing = "https://other.test/landing"
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/a", "/b"}},
		u("a"):    {},
		u("b"):    {redirect: landing},
		landing:   {links: []string{"https://other.test/more"}},
	})
	writer := &memWriter{}
	tracker := freshTracker()
	ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: 2})

	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got, want := tracker.Visited(), []string{u("a"), u("b"), u("root")}; !reflect.DeepEqual(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
	if got, want := writer.sorted(), []string{u("a"), u("root")}; !reflect.DeepEqual(got, want) {
		t.Errorf("产物来源 = %v, want %v", got, want)
	}
	if site.fetchCount("https://other.test/more") != 0 {
		t.Error("不应跟随站外页面上的链接")
	}
}

func TestController_NoDuplicateClaims(t *testing.T) {
	const n = 20
	pages := make(map[string]fakePage, n+1)
	all := make([]string, 0, n)
	for i := 0; i < n; i++ {
		all = append(all, fmt.Sprintf("/p%d", i))
	}
	pages[u("root")] = fakePage{links: all}
	for i := 0; i < n; i++ {
		// 每个页面都链接到所有页面,形成环
		pages[u(fmt.Sprintf("p%d", i))] = fakePage{links: append([]string{"/root"}, all...)}
	}

	tests := []struct {
		name string
		cap  int
	}{
		{"并发1", 1},
		{"并发4", 4},
		{"并发大于页面数", 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite(pages)
			writer := &memWriter{}
			tracker := freshTracker()
			ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: tt.cap})

			if _, err := ctrl.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			for page := range pages {
				if c := site.fetchCount(page); c != 1 {
					t.Errorf("%s 被抓取 %d 次", page, c)
				}
			}
			if int(site.maxActive.Load()) > tt.cap {
				t.Errorf("最大并发 %d 超过上限 %d", site.maxActive.Load(), tt.cap)
			}
			if len(writer.sorted()) != n+1 {
				t.Errorf("产物数 = %d, want %d", len(writer.sorted()), n+1)
			}
		})
	}
}

func resumeGraph() map[string]fakePage {
	return map[string]fakePage{
		u("root"): {links: []string{"/a", "/b"}},
		u("a"):    {links: []string{"/c"}},
		u("b"):    {links: []string{"/d"}},
		u("c"):    {links: []string{"/e"}},
		u("d"):    {links: []string{"/root"}},
		u("e"):    {},
	}
}

func TestController_ResumeEquivalence(t *testing.T) {
	full := &memWriter{}
	fullTracker := freshTracker()
	if _, err := NewController(fullTracker, newFakeSite(resumeGraph()), full, ControllerConfig{Cap: 2}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 第二批结束后中断
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &memWriter{}
	tracker := freshTracker()
	ctrl := NewController(tracker, newFakeSite(resumeGraph()), first, ControllerConfig{Cap: 2})
	ctrl.OnBatch = func(r BatchReport) {
		if r.Batch == 2 {
			cancel()
		}
	}
	outcome, err := ctrl.Run(ctx)
	if err != nil || outcome != OutcomeInterrupted {
		t.Fatalf("Run() = %s, %v, want interrupted", outcome, err)
	}

	cp := models.NewCheckpoint(t.TempDir())
	if err := cp.Save(tracker.Snapshot()); err != nil {
		t.Fatal(err)
	}
	state, err := cp.Load(testPrefix)
	if err != nil {
		t.Fatal(err)
	}

	second := &memWriter{}
	resumed := NewTracker(state)
	outcome, err = NewController(resumed, newFakeSite(resumeGraph()), second, ControllerConfig{Cap: 2}).Run(context.Background())
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("恢复运行 = %s, %v", outcome, err)
	}

	combined := append(first.sorted(), second.sorted()...)
	sort.Strings(combined)
	if !reflect.DeepEqual(combined, full.sorted()) {
		t.Errorf("中断+恢复 = %v, 一次完成 = %v", combined, full.sorted())
	}
	if got, want := resumed.Visited(), fullTracker.Visited(); !reflect.DeepEqual(got, want) {
		t.Errorf("恢复后visited = %v, 一次完成 = %v", got, want)
	}
	if resumed.FrontierSize() != 0 || resumed.FailedCount() != fullTracker.FailedCount() {
		t.Errorf("恢复后 frontier=%d failed=%d", resumed.FrontierSize(), resumed.FailedCount())
	}
}

func TestController_CancellationRequeue(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/slow", "/a"}},
		u("slow"): {block: true},
		u("a"):    {},
	})
	site.interrupted = []string{u("tab?state=1"), "https://other.test/elsewhere"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for started := range site.started {
			if started == u("slow") {
				cancel()
				return
			}
		}
	}()

	writer := &memWriter{}
	tracker := freshTracker()
	ctrl := NewController(tracker, site, writer, ControllerConfig{Cap: 2, PageTimeout: time.Minute})

	outcome, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %s, want interrupted", outcome)
	}

	snap := tracker.Snapshot()
	frontier := snap.FrontierURLs()
	sort.Strings(frontier)
	if want := []string{u("slow"), u("tab")}; !reflect.DeepEqual(frontier, want) {
		t.Errorf("frontier = %v, want %v", frontier, want)
	}
	for _, v := range snap.Visited {
		if v == u("slow") {
			t.Error("被中断的URL不应持久化为已访问")
		}
	}
	if len(snap.Failed) != 0 {
		t.Errorf("取消导致的中断不应记为失败: %v", snap.Failed)
	}
}

func TestController_PageTimeout(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/slow"}},
		u("slow"): {block: true},
	})
	tracker := freshTracker()
	ctrl := NewController(tracker, site, &memWriter{}, ControllerConfig{Cap: 1, PageTimeout: 50 * time.Millisecond})

	outcome, err := ctrl.Run(context.Background())
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("Run() = %s, %v", outcome, err)
	}
	failed := tracker.Failed()
	if len(failed) != 1 || failed[0].URL != u("slow") {
		t.Fatalf("失败集合 = %+v", failed)
	}
	if !strings.Contains(failed[0].Error, ErrPageTimeout.Error()) {
		t.Errorf("失败原因应为超时: %q", failed[0].Error)
	}
}

func TestController_OnPage(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		u("root"): {links: []string{"/a"}},
		u("a"):    {err: errors.New("boom")},
	})
	ctrl := NewController(freshTracker(), site, &memWriter{}, ControllerConfig{Cap: 2, RateLimit: 1000})

	var mu sync.Mutex
	results := map[string]PageResult{}
	ctrl.OnPage = func(r PageResult) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Target.URL] = r
	}
	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if r := results[u("root")]; r.Err != nil || r.Links != 1 {
		t.Errorf("root 结果 = %+v", r)
	}
	if r := results[u("a")]; r.Err == nil {
		t.Error("a 应报告错误")
	}
}

func TestController_NoFetcher(t *testing.T) {
	ctrl := NewController(freshTracker(), nil, nil, ControllerConfig{Cap: 1})
	if _, err := ctrl.Run(context.Background()); err == nil {
		t.Error("未配置抓取器应返回错误")
	}
}
