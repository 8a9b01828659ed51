// Copyright 2025 The llm-d Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stopstrings

import (
	"context"
	"hash/fnv"
	"sync"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils/logging"
)

// WarmupConfig holds the configuration for the table warm-up pool.
type WarmupConfig struct {
	// Concurrency is the number of parallel workers to run.
	Concurrency int `json:"concurrency"`
}

// DefaultWarmupConfig returns a default configuration for the warm-up pool.
func DefaultWarmupConfig() *WarmupConfig {
	return &WarmupConfig{
		Concurrency: 4,
	}
}

// WarmupTask describes one table to prebuild.
type WarmupTask struct {
	Vocab       *tokenization.Vocabulary
	StopStrings []string
	// Normalizer names the token normalization convention; empty selects
	// the default.
	Normalizer string
}

// WarmupPool is a sharded worker pool that prebuilds alignment tables
// into a TableCache, so the first evaluation of known (vocabulary, stop
// strings) pairs hits a warm table instead of paying the build on the
// serving path. Tasks for the same table always land on the same worker.
type WarmupPool struct {
	queues      []workqueue.TypedRateLimitingInterface[*WarmupTask]
	concurrency int
	cache       *TableCache
	wg          sync.WaitGroup
}

// NewWarmupPool creates a WarmupPool with a sharded worker setup.
// Prebuilt tables land in the given cache; a nil cache uses the shared
// package-level cache so criteria constructed later find the tables.
func NewWarmupPool(cfg *WarmupConfig, cache *TableCache) *WarmupPool {
	if cfg == nil {
		cfg = DefaultWarmupConfig()
	}
	if cache == nil {
		cache = sharedTableCache()
	}

	p := &WarmupPool{
		queues:      make([]workqueue.TypedRateLimitingInterface[*WarmupTask], cfg.Concurrency),
		concurrency: cfg.Concurrency,
		cache:       cache,
	}

	for i := 0; i < p.concurrency; i++ {
		p.queues[i] = workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[*WarmupTask]())
	}

	return p
}

// Start begins the worker pool. It is non-blocking.
func (p *WarmupPool) Start(ctx context.Context) {
	logger := klog.FromContext(ctx)
	logger.Info("Starting table warm-up pool", "workers", p.concurrency)

	p.wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		// Each worker is given its own dedicated queue shard.
		go p.worker(ctx, i)
	}
}

// Shutdown gracefully stops the pool, waiting for in-flight builds.
func (p *WarmupPool) Shutdown(ctx context.Context) {
	logger := klog.FromContext(ctx)
	logger.Info("Shutting down table warm-up pool...")

	for _, queue := range p.queues {
		queue.ShutDown()
	}

	p.wg.Wait()
	logger.Info("table warm-up pool shut down.")
}

// AddTask queues a table for prebuilding. The task's cache key selects
// the queue, so repeated requests for the same table stay ordered on one
// worker.
func (p *WarmupPool) AddTask(ctx context.Context, task *WarmupTask) {
	key, err := cacheKey(task.Vocab, task.StopStrings, task.Normalizer)
	if err != nil {
		klog.FromContext(ctx).Error(err, "dropping warm-up task with unkeyable inputs")
		return
	}

	// Use an FNV-1a hash to deterministically select a queue.
	h := fnv.New32a()
	_, err = h.Write([]byte(key))
	if err != nil {
		return
	}

	//nolint:gosec // if concurrency overflows then the world is in trouble anyway
	queueIndex := h.Sum32() % uint32(p.concurrency)
	p.queues[queueIndex].Add(task)
}

// worker is the main processing loop for a single worker goroutine.
func (p *WarmupPool) worker(ctx context.Context, workerIndex int) {
	defer p.wg.Done()
	queue := p.queues[workerIndex]
	for {
		task, shutdown := queue.Get()
		if shutdown {
			return
		}

		// Use a nested func to ensure Done is always called.
		func(task *WarmupTask) {
			defer queue.Done(task)
			p.processTask(ctx, task)
			queue.Forget(task)
		}(task)

		// Check if context was cancelled after processing a task.
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// processTask builds (or finds) the task's table. Builds are
// deterministic, so a failure is logged and dropped rather than retried.
func (p *WarmupPool) processTask(ctx context.Context, task *WarmupTask) {
	debugLogger := klog.FromContext(ctx).V(logging.DEBUG)

	table, err := p.cache.GetOrBuild(ctx, task.Vocab, task.StopStrings, task.Normalizer)
	if err != nil {
		debugLogger.Error(err, "Failed to prebuild alignment table", "stopStrings", task.StopStrings)
		return
	}

	debugLogger.Info("Prebuilt alignment table",
		"stopStrings", task.StopStrings, "sizeBytes", table.SizeBytes())
}
