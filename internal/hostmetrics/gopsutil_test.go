package hostmetrics

import (
	"context"
	"os"
	"testing"
)

// Runs against the real host; failures to read are skipped since CI sandboxes
// often hide /sys and /proc details.
func TestGopsutilHostSmoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewGopsutil()

	pct, err := provider.CPUPercent(ctx, 0)
	if err != nil {
		t.Skipf("cpu percent unavailable: %v", err)
	}
	if pct < 0 || pct > 100 {
		t.Fatalf("cpu percent out of range: %v", pct)
	}

	used, err := provider.MemoryUsedBytes(ctx)
	if err != nil {
		t.Skipf("memory unavailable: %v", err)
	}
	if used == 0 {
		t.Fatalf("expected non-zero used memory")
	}

	proc, err := provider.Process(ctx, os.Getpid())
	if err != nil {
		t.Skipf("process binding unavailable: %v", err)
	}
	rss, err := proc.RSSBytes(ctx)
	if err != nil {
		t.Skipf("rss unavailable: %v", err)
	}
	if rss == 0 {
		t.Fatalf("expected non-zero rss for the test binary")
	}
	if baseline, err := proc.CPUPercent(ctx); err == nil && baseline != 0 {
		t.Fatalf("first process cpu sample should be the 0 baseline, got %v", baseline)
	}
	if pct, err := proc.CPUPercent(ctx); err == nil && (pct < 0 || pct > 100) {
		t.Fatalf("process cpu percent out of range: %v", pct)
	}
}
