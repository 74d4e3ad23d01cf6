package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTrackAccumulates(t *testing.T) {
	ResetFrame()
	for _i := 0; _i < 3; _i++ {
		stop := Track("test.op")
		time.Sleep(time.Millisecond)
		stop()
	}
	got := Snapshot()["test.op"]
	if got < 3*time.Millisecond {
		t.Errorf("total = %v, want at least 3ms", got)
	}
	ResetFrame()
	if len(Snapshot()) != 0 {
		t.Error("ResetFrame left totals behind")
	}
}

func TestCount(t *testing.T) {
	ResetFrame()
	Count("loads", 2)
	Count("loads", 3)
	Count("unloads", 0)
	c := Counters()
	if c["loads"] != 5 {
		t.Errorf("loads = %d, want 5", c["loads"])
	}
	if _, ok := c["unloads"]; ok {
		t.Error("zero count created an entry")
	}
}

func TestTopNOrder(t *testing.T) {
	ResetFrame()
	mu.Lock()
	frameTotals["a"] = 1500 * time.Microsecond
	frameTotals["b"] = 4 * time.Millisecond
	frameTotals["c"] = 200 * time.Microsecond
	mu.Unlock()

	if got, want := TopN(2), "b:4ms, a:1.5ms"; got != want {
		t.Errorf("TopN(2) = %q, want %q", got, want)
	}
	if got := TopN(10); strings.Count(got, ",") != 2 {
		t.Errorf("TopN(10) = %q, want three entries", got)
	}
	if got := TopN(0); got != "" {
		t.Errorf("TopN(0) = %q", got)
	}
	ResetFrame()
}

func TestSumWithPrefix(t *testing.T) {
	ResetFrame()
	mu.Lock()
	frameTotals["world.update"] = 2 * time.Millisecond
	frameTotals["world.mesh"] = 3 * time.Millisecond
	frameTotals["store.flush"] = 7 * time.Millisecond
	mu.Unlock()

	if got := SumWithPrefix("world."); got != 5*time.Millisecond {
		t.Errorf("world. = %v, want 5ms", got)
	}
	if got := SumWithPrefix("net."); got != 0 {
		t.Errorf("net. = %v, want 0", got)
	}
	ResetFrame()
}
