package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader     int64
	errorsCache      int64
	warnsReader      int64
	warnsCache       int64
	observationReads int64
	ephemerisReads   int64
	liveReads        int64
	cacheWrites      int64
	channels         sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "cache") {
		atomic.AddInt64(&warnsCache, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "cache") {
		atomic.AddInt64(&errorsCache, 1)
	}
}

// IncrementObservationRead counts one fetch from the observation network.
func IncrementObservationRead(size int) {
	atomic.AddInt64(&observationReads, 1)
	recordChannel("observation_rest", size)
}

// IncrementEphemerisRead counts one fetch from the ephemeris service.
func IncrementEphemerisRead(size int) {
	atomic.AddInt64(&ephemerisReads, 1)
	recordChannel("ephemeris_rest", size)
}

// IncrementLiveRead counts one live-coordinates sample, whether it arrived
// over the websocket stream or a poll.
func IncrementLiveRead(size int) {
	atomic.AddInt64(&liveReads, 1)
	recordChannel("live_stream", size)
}

// IncrementCacheWrite counts one merged record written through the cache.
func IncrementCacheWrite(size int) {
	atomic.AddInt64(&cacheWrites, 1)
	recordChannel("cache_write", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_reader":     atomic.LoadInt64(&errorsReader),
		"errors_cache":      atomic.LoadInt64(&errorsCache),
		"warns_reader":      atomic.LoadInt64(&warnsReader),
		"warns_cache":       atomic.LoadInt64(&warnsCache),
		"observation_reads": atomic.LoadInt64(&observationReads),
		"ephemeris_reads":   atomic.LoadInt64(&ephemerisReads),
		"live_reads":        atomic.LoadInt64(&liveReads),
		"cache_writes":      atomic.LoadInt64(&cacheWrites),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"channels":          channelData,
	}
	if memStats != nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}
	if diskStats != nil {
		fields["disk_mb"] = int64(diskStats.Used) / 1024 / 1024
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
