package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"facebot-go/internal/core/models"
)

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, clusterEncoder())
	pool := p.Pool()

	p.Shutdown()
	p.Shutdown() // repeated shutdown must be a no-op

	_, err := pool.Predict(context.Background(), []byte("alice-1"), models.SourceTelegram)
	assert.ErrorIs(t, err, ErrPoolClosed)

	err = pool.Train(context.Background(), []byte("alice-1"), "alice", models.SourceTelegram)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPoolShutdownDuringSubmits(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, clusterEncoder())
	enrollClusters(t, p.Service())
	pool := p.Pool()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Predict(context.Background(), []byte("alice-1"), models.SourceTelegram)
			if err != nil {
				assert.ErrorIs(t, err, ErrPoolClosed)
			}
		}()
	}
	p.Shutdown()
	wg.Wait()
}
