package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pin-ingest/internal/model"
)

type fixedResolver struct{ coord model.Coordinate }

func (f fixedResolver) Resolve(context.Context, string) model.Coordinate { return f.coord }

func (f fixedResolver) ResolveMany(ctx context.Context, addrs []string, limit int) []model.Coordinate {
	return resolveMany(ctx, f, addrs, limit)
}

func TestLazy_InitOnceUnderConcurrency(t *testing.T) {
	var inits atomic.Int32
	l := NewLazy(func() (Resolver, error) {
		inits.Add(1)
		return fixedResolver{coord: model.Coordinate{Latitude: 1, Longitude: 2}}, nil
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.Get()
			assert.NoError(t, err)
			assert.Equal(t, 1.0, r.Resolve(context.Background(), "x").Latitude)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), inits.Load())
}

func TestLazy_ErrorIsMemoized(t *testing.T) {
	var inits atomic.Int32
	l := NewLazy(func() (Resolver, error) {
		inits.Add(1)
		return nil, errors.New("no key")
	})

	_, err1 := l.Get()
	_, err2 := l.Get()
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), inits.Load())
}
