package store

// History 固定容量的历史序列。满了以后追加会丢弃最旧的一条（FIFO），
// 保留插入顺序，不做去重。所有有界历史共用这一个实现
type History[T any] struct {
	capacity int
	items    []T
}

// NewHistory 创建历史序列，capacity 必须大于 0
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &History[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Append 追加一条记录，超出容量时丢弃最旧的
func (h *History[T]) Append(v T) {
	if len(h.items) >= h.capacity {
		copy(h.items, h.items[1:])
		h.items = h.items[:len(h.items)-1]
	}
	h.items = append(h.items, v)
}

// Len 当前记录数
func (h *History[T]) Len() int {
	return len(h.items)
}

// Values 返回全部记录的副本（最旧在前）
func (h *History[T]) Values() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// Tail 返回最近 n 条记录的副本；n 大于当前长度时返回全部
func (h *History[T]) Tail(n int) []T {
	if n <= 0 {
		return nil
	}
	start := len(h.items) - n
	if start < 0 {
		start = 0
	}
	out := make([]T, len(h.items)-start)
	copy(out, h.items[start:])
	return out
}
