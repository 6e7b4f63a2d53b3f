package engine

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rosterlabs/signsync/internal/roster"
)

// Dispatcher applies write actions with bounded concurrency. Actions are
// partitioned by case-folded email, so two actions for the same email never
// run concurrently. Errors are handled by the apply callback itself; a failed
// action never stops the remaining ones.
type Dispatcher struct {
	Workers int
}

// Apply runs apply for every action. With one worker (or fewer actions than
// workers) processing degrades to the sequential reference behavior.
func (d Dispatcher) Apply(ctx context.Context, actions []Action, apply func(context.Context, Action)) {
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(actions) {
		workers = len(actions)
	}

	if workers <= 1 {
		for _, a := range actions {
			if ctx.Err() != nil {
				return
			}
			apply(ctx, a)
		}
		return
	}

	buckets := make([][]Action, workers)
	for _, a := range actions {
		i := bucketFor(a.Email, workers)
		buckets[i] = append(buckets[i], a)
	}

	var wg sync.WaitGroup
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(bucket []Action) {
			defer wg.Done()
			for _, a := range bucket {
				if ctx.Err() != nil {
					return
				}
				apply(ctx, a)
			}
		}(bucket)
	}
	wg.Wait()
}

func bucketFor(email string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roster.Fold(email)))
	return int(h.Sum32() % uint32(workers))
}
