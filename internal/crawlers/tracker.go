package crawlers

import (
	"sort"
	"sync"

	"github.com/RecoveryAshes/SiteHarvest/internal/models"
)

// Tracker 已访问/待访问/失败集合
// visited 只增不减; frontier 中的目标在插入时保证未被访问,取批次时再次过滤
type Tracker struct {
	mu sync.Mutex

	visited  map[string]struct{}
	frontier []models.CrawlTarget
	queued   map[models.CrawlTarget]struct{}
	failed   map[string]string

	// 已认领但尚未处理完成的URL
	inFlight map[string]models.CrawlTarget

	// 中断时折回frontier的已访问URL,持久化时从visited中排除
	requeued map[string]struct{}
}

// NewTracker 从爬取状态构建跟踪器
func NewTracker(state *models.CrawlState) *Tracker {
	t := &Tracker{
		visited:  make(map[string]struct{}),
		queued:   make(map[models.CrawlTarget]struct{}),
		failed:   make(map[string]string),
		inFlight: make(map[string]models.CrawlTarget),
		requeued: make(map[string]struct{}),
	}
	if state == nil {
		return t
	}

	for _, u := range state.Visited {
		t.visited[u] = struct{}{}
	}
	for _, target := range state.Frontier {
		if _, ok := t.queued[target]; ok {
			continue
		}
		t.queued[target] = struct{}{}
		t.frontier = append(t.frontier, target)
	}
	for _, f := range state.Failed {
		t.failed[f.URL] = f.Error
	}
	return t
}

// AddTarget 加入frontier; 已访问或已在队列中返回false
func (t *Tracker) AddTarget(target models.CrawlTarget) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.visited[target.URL]; ok {
		return false
	}
	if _, ok := t.queued[target]; ok {
		return false
	}
	t.queued[target] = struct{}{}
	t.frontier = append(t.frontier, target)
	return true
}

// ClaimBatch 从frontier取出最多n个目标并认领
// 已访问的目标直接丢弃,不重新入队
func (t *Tracker) ClaimBatch(n int) []models.CrawlTarget {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch := make([]models.CrawlTarget, 0, n)
	i := 0
	for ; i < len(t.frontier) && len(batch) < n; i++ {
		target := t.frontier[i]
		delete(t.queued, target)
		if _, ok := t.visited[target.URL]; ok {
			continue
		}
		t.visited[target.URL] = struct{}{}
		t.inFlight[target.URL] = target
		batch = append(batch, target)
	}
	t.frontier = t.frontier[i:]
	return batch
}

// Claim 认领单个URL; 已被认领返回false
func (t *Tracker) Claim(target models.CrawlTarget) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.visited[target.URL]; ok {
		return false
	}
	t.visited[target.URL] = struct{}{}
	t.inFlight[target.URL] = target
	return true
}

// Complete 标记URL处理结束(成功或失败)
func (t *Tracker) Complete(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, url)
}

// RecordFailure 记录失败链接,URL保持已认领状态
func (t *Tracker) RecordFailure(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[url] = models.CollapseNewlines(err.Error())
}

// Requeue 把目标折回frontier,即使其URL已被认领
func (t *Tracker) Requeue(target models.CrawlTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, target.URL)
	if _, ok := t.visited[target.URL]; ok {
		t.requeued[target.URL] = struct{}{}
	}
	if _, ok := t.queued[target]; ok {
		return
	}
	t.queued[target] = struct{}{}
	t.frontier = append(t.frontier, target)
}

// InFlight 返回尚未处理完成的目标
func (t *Tracker) InFlight() []models.CrawlTarget {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CrawlTarget, 0, len(t.inFlight))
	for _, target := range t.inFlight {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// IsVisited 检查URL是否已被认领
func (t *Tracker) IsVisited(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.visited[url]
	return ok
}

// VisitedCount 已认领URL数量
func (t *Tracker) VisitedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visited)
}

// FrontierSize 待访问目标数量
func (t *Tracker) FrontierSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frontier)
}

// FailedCount 失败链接数量
func (t *Tracker) FailedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failed)
}

// Visited 返回排序后的已访问URL
func (t *Tracker) Visited() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.visited)
}

// Failed 返回按URL排序的失败记录
func (t *Tracker) Failed() []models.FailedLink {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.FailedLink, 0, len(t.failed))
	for u, msg := range t.failed {
		out = append(out, models.FailedLink{URL: u, Error: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Snapshot 导出可持久化状态
// 折回frontier的URL不计入visited,下次恢复时会重新抓取
func (t *Tracker) Snapshot() *models.CrawlState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := &models.CrawlState{
		Visited:  make([]string, 0, len(t.visited)),
		Frontier: make([]models.CrawlTarget, len(t.frontier)),
	}
	for _, u := range sortedKeys(t.visited) {
		if _, ok := t.requeued[u]; ok {
			continue
		}
		state.Visited = append(state.Visited, u)
	}
	copy(state.Frontier, t.frontier)

	state.Failed = make([]models.FailedLink, 0, len(t.failed))
	for u, msg := range t.failed {
		state.Failed = append(state.Failed, models.FailedLink{URL: u, Error: msg})
	}
	sort.Slice(state.Failed, func(i, j int) bool { return state.Failed[i].URL < state.Failed[j].URL })
	return state
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
