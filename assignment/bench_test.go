package assignment

import (
	"context"
	"fmt"
	"testing"

	"aicf/core/types"
	"aicf/priority"
	"aicf/quota"
	"aicf/registry"
	"aicf/storage"
)

// benchSetup seeds a memory store with queued AI jobs and a pool of ACTIVE
// providers so a single Tick has a full ranking/matching workload.
func benchSetup(b *testing.B, jobs, providers int) *Engine {
	b.Helper()
	store := storage.NewMemoryStore()
	reg := registry.New(registry.NewMemoryProviderStore(), nil, nil, registry.Config{})
	q := quota.New()
	for i := 0; i < providers; i++ {
		id := types.HexID(fmt.Sprintf("prov-%04d", i))
		if _, err := reg.RegisterProvider(id, 1<<types.CapabilityAI, nil, true, 1000, "us"); err != nil {
			b.Fatal(err)
		}
		q.SetLimits(id, quota.ProviderLimits{AIUnitsPerEpoch: uint64(jobs), MaxConcurrent: jobs})
	}
	ctx := context.Background()
	for i := 0; i < jobs; i++ {
		job := types.Job{
			JobID:       types.HexID(fmt.Sprintf("job-%06d", i)),
			Kind:        types.JobKindAI,
			Fee:         uint64(1000 + i%97),
			SizeBytes:   2048,
			Tier:        types.TierStandard,
			TTLSeconds:  3600,
			MaxAttempts: 3,
			Status:      types.JobQueued,
		}
		if err := store.PutJob(ctx, job); err != nil {
			b.Fatal(err)
		}
	}
	return New(store, reg, q, priority.FilterConfig{WeightHealth: 1}, resolveAlways(reg), 300, nil)
}

func BenchmarkAssignmentPass(b *testing.B) {
	for _, size := range []int{64, 512} {
		b.Run(fmt.Sprintf("jobs=%d", size), func(b *testing.B) {
			ctx := context.Background()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				eng := benchSetup(b, size, 32)
				b.StartTimer()
				if _, err := eng.Tick(ctx, 5, 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
