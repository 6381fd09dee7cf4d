package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrPoolClosed 标签页池已关闭
var ErrPoolClosed = errors.New("标签页池已关闭")

// PagePool 标签页池管理器
// 最多持有cap个句柄: 未满时创建新句柄,已满后按轮转顺序复用最久未用的句柄
// 句柄不会被单独销毁,只在Close时整体释放
type PagePool[T any] struct {
	create func(ctx context.Context) (T, error)
	cap    int

	// 保护handles和closed; 判断容量与创建必须在同一临界区内完成
	mu      sync.Mutex
	handles []T
	closed  bool
}

// NewPagePool 创建标签页池实例
func NewPagePool[T any](cap int, create func(ctx context.Context) (T, error)) *PagePool[T] {
	if cap < 1 {
		cap = 1
	}
	return &PagePool[T]{
		create:  create,
		cap:     cap,
		handles: make([]T, 0, cap),
	}
}

// Acquire 获取一个句柄
func (pp *PagePool[T]) Acquire(ctx context.Context) (T, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	var zero T
	if pp.closed {
		return zero, ErrPoolClosed
	}

	if len(pp.handles) < pp.cap {
		h, err := pp.create(ctx)
		if err != nil {
			return zero, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
		}
		pp.handles = append(pp.handles, h)
		log.Debug().Msgf("创建新标签页,当前标签页数: %d, 最大限制: %d", len(pp.handles), pp.cap)
		return h, nil
	}

	// 轮转: 取队首,移到队尾
	h := pp.handles[0]
	copy(pp.handles, pp.handles[1:])
	pp.handles[len(pp.handles)-1] = h
	return h, nil
}

// Size 当前句柄数量
func (pp *PagePool[T]) Size() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.handles)
}

// Cap 句柄数量上限
func (pp *PagePool[T]) Cap() int {
	return pp.cap
}

// Close 关闭标签页池,释放所有句柄; 重复调用无副作用
func (pp *PagePool[T]) Close(closeFn func(T) error) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.closed {
		return nil
	}
	pp.closed = true

	var errs []error
	if closeFn != nil {
		for _, h := range pp.handles {
			if err := closeFn(h); err != nil {
				log.Warn().Err(err).Msg("关闭标签页失败")
				errs = append(errs, err)
			}
		}
	}
	pp.handles = nil

	log.Debug().Msg("标签页池已关闭")
	return errors.Join(errs...)
}
