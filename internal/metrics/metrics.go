// Package metrics 爬取过程的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "siteharvest"

// Collector 汇总一次爬取运行的指标
type Collector struct {
	registry *prometheus.Registry

	PagesProcessed prometheus.Counter
	PagesFailed    *prometheus.CounterVec
	FrontierSize   prometheus.Gauge
	VisitedSize    prometheus.Gauge
	BatchDuration  prometheus.Histogram
	FetchDuration  prometheus.Histogram
}

// NewCollector 在独立的registry上注册全部指标
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.NewRegistry())
}

// NewCollectorWith 在给定registry上注册全部指标
func NewCollectorWith(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		PagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_processed_total",
			Help:      "成功处理的页面总数",
		}),
		PagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_failed_total",
			Help:      "处理失败的页面总数",
		}, []string{"reason"}), // timeout, fetch, process
		FrontierSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frontier_size",
			Help:      "待访问URL数量",
		}),
		VisitedSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visited_size",
			Help:      "已认领URL数量",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "单个批次的耗时",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "单个页面从抓取到写入的耗时",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry 返回指标所在的registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObservePage 记录一个页面的处理结果, reason 为空表示成功
func (c *Collector) ObservePage(d time.Duration, reason string) {
	c.FetchDuration.Observe(d.Seconds())
	if reason == "" {
		c.PagesProcessed.Inc()
		return
	}
	c.PagesFailed.WithLabelValues(reason).Inc()
}

// ObserveBatch 记录一个批次结束时的状态
func (c *Collector) ObserveBatch(d time.Duration, visited, frontier int) {
	c.BatchDuration.Observe(d.Seconds())
	c.VisitedSize.Set(float64(visited))
	c.FrontierSize.Set(float64(frontier))
}

// Handler 返回暴露本registry的HTTP处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Server 指标HTTP服务
type Server struct {
	srv *http.Server
}

// Serve 在addr上后台启动 /metrics 服务
func (c *Collector) Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("指标服务异常退出")
		}
	}()
	log.Info().Str("addr", addr).Msg("指标服务已启动")
	return &Server{srv: srv}
}

// Shutdown 关闭指标服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
