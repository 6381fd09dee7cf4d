// Package crawlers 实现有界并发、可恢复的站内深度爬取
//
// # 核心组件
//
// ## Controller (爬取控制器)
//
// 批次循环: 从Tracker认领最多cap个目标,用errgroup并发处理,
// 等待整批结束后再把新发现的链接合并进frontier。批次边界是严格屏障。
//
//	tracker := NewTracker(models.NewFreshState(config.StartTarget()))
//	ctrl := NewController(tracker, fetcher, writer, ControllerConfig{Cap: 10, PageTimeout: 90 * time.Second})
//	outcome, err := ctrl.Run(ctx)
//
// ctx被取消时,未完成的目标以及被中断标签页所在的URL会放回frontier,
// 并且不计入持久化的visited集合,下次恢复时重新抓取。
//
// ## Tracker (状态跟踪)
//
// visited (已认领,只增不减)、frontier (待访问)、failed (失败记录)。
// 认领发生在抓取之前,同一URL在一次运行中最多抓取一次。
//
// ## PagePool (标签页池)
//
// 泛型句柄池。未满cap时创建新句柄,满后按轮转顺序复用。
// 容量判断与创建在同一把锁内完成,并发调用不会超出上限。
//
// ## Fetcher (页面抓取)
//
//   - BrowserSession: go-rod 渲染, 滚动直到内容高度稳定, 识别并点击拦截页,
//     点击后URL变化时在同一个标签页上继续抓取 (跳转次数有上限)
//   - StaticFetcher: Colly 抓取原始HTML, 不执行JavaScript
//
// ## URLExtractor / LinkCanonicalizer
//
// 提取 <a href>, 相对页面URL解析, 去掉查询串和片段, 只保留站点前缀内的链接。
//
// ## ResourceMonitor (资源监控器)
//
// 根据可用内存与CPU核数估算标签页上限,启动时用于检查并发上限是否合理。
//
// # 错误处理
//
// 导航、滚动等待、拦截页处理、HTML读取的失败统一包装为 *FetchError,
// 由控制器记入失败集合,不会中止运行。单页超时 (ErrPageTimeout) 也按失败处理;
// 运行被取消导致的失败不记为失败,而是放回frontier。
package crawlers
