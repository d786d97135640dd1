package spiderdata

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/PuerkitoBio/fetchbot"
)

func runMemStats(ctx context.Context, g *Globals, f *fetchbot.Fetcher, tick time.Duration) {
	var mu sync.Mutex
	var di *fetchbot.DebugInfo

	// Start goroutine to collect fetchbot debug info
	go func() {
		for v := range f.Debug() {
			mu.Lock()
			di = v
			mu.Unlock()
		}
	}()
	// Start ticker goroutine to log mem stats at regular intervals
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				logMemStats(g, di)
				mu.Unlock()
			}
		}
	}()
}

func logMemStats(g *Globals, di *fetchbot.DebugInfo) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	event := g.Log.Info().
		Uint64("alloc_kb", mem.Alloc/1024).
		Uint64("total_alloc_kb", mem.TotalAlloc/1024).
		Uint32("num_gc", mem.NumGC).
		Int("goroutines", runtime.NumGoroutine())
	if di != nil {
		event = event.Int("num_hosts", di.NumHosts)
	}
	event.Msg("memory profile")
}
