package svcinit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func benchRegistry(b *testing.B) (*Registry, *countingLauncher) {
	b.Helper()
	l := newCountingLauncher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(WithLauncher(l), WithLogger(logger)), l
}

// layeredBatch builds width services per layer, each depending on every
// service of the previous layer
func layeredBatch(prefix string, layers, width int) []*Service {
	var batch []*Service
	for layer := 0; layer < layers; layer++ {
		for i := 0; i < width; i++ {
			var deps []string
			if layer > 0 {
				for j := 0; j < width; j++ {
					deps = append(deps, fmt.Sprintf("%s-%d-%d", prefix, layer-1, j))
				}
			}
			batch = append(batch, testService(fmt.Sprintf("%s-%d-%d", prefix, layer, i), deps...))
		}
	}
	return batch
}

// BenchmarkPushServices measures registering and linking a batch
func BenchmarkPushServices(b *testing.B) {
	r, _ := benchRegistry(b)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.PushServices(layeredBatch(fmt.Sprintf("b%d", i), 4, 8))
	}
}

// BenchmarkStartServices measures resolving and starting a fresh graph
func BenchmarkStartServices(b *testing.B) {
	ctx := context.Background()

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		r, _ := benchRegistry(b)
		r.PushServices(layeredBatch("s", 4, 8))
		b.StartTimer()

		if err := r.StartServices(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLookupParallel measures parallel name lookups
func BenchmarkLookupParallel(b *testing.B) {
	r, _ := benchRegistry(b)
	batch := layeredBatch("l", 8, 16)
	r.PushServices(batch)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, ok := r.Lookup(batch[i%len(batch)].Name); !ok {
				b.Fatal("lookup failed")
			}
			i++
		}
	})
}

// BenchmarkStartServiceOnline measures the idempotent start of an online
// service
func BenchmarkStartServiceOnline(b *testing.B) {
	ctx := context.Background()
	r, _ := benchRegistry(b)
	idx := r.PushServices([]*Service{testService("a")})[0]
	if err := r.StartService(ctx, idx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := r.StartService(ctx, idx); err != nil {
				b.Fatal(err)
			}
		}
	})
}
