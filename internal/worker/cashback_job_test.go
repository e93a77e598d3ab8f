package worker

import (
	"testing"
	"time"
)

func TestNextRunAt(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	// 触发点还在今天
	now := time.Date(2025, 10, 20, 1, 30, 0, 0, loc)
	next := nextRunAt(now, 2)
	want := time.Date(2025, 10, 20, 2, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// 触发点已过，顺延到明天
	now = time.Date(2025, 10, 20, 2, 0, 1, 0, loc)
	next = nextRunAt(now, 2)
	want = time.Date(2025, 10, 21, 2, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// 正好整点算已过（避免同一分钟内双触发）
	now = time.Date(2025, 10, 20, 2, 0, 0, 0, loc)
	next = nextRunAt(now, 2)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}
