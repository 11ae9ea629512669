package job

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avisser/pulseframe-api/internal/gen"
)

func TestRegistry_SaveAndFind(t *testing.T) {
	reg := NewRegistry()
	rec := NewRecord("sim-1", nil)

	reg.Save(rec)

	found, err := reg.Find("sim-1")
	require.NoError(t, err)
	assert.Equal(t, "sim-1", found.ID)
	assert.Equal(t, gen.StatusPending, found.Status)
}

func TestRegistry_Find_NotFound(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Find("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_SaveClones(t *testing.T) {
	reg := NewRegistry()
	rec := NewRecord("sim-1", nil)
	reg.Save(rec)

	// Mutating the caller's record after Save must not leak into the registry.
	require.NoError(t, rec.Fail("mutated later"))

	found, err := reg.Find("sim-1")
	require.NoError(t, err)
	assert.Equal(t, gen.StatusPending, found.Status)
}

func TestRegistry_List_NewestFirst(t *testing.T) {
	reg := NewRegistry()

	older := NewRecord("sim-old", nil)
	older.SubmittedAt = time.Now().Add(-time.Hour)
	newer := NewRecord("sim-new", nil)

	reg.Save(older)
	reg.Save(newer)

	records := reg.List()
	require.Len(t, records, 2)
	assert.Equal(t, "sim-new", records[0].ID)
	assert.Equal(t, "sim-old", records[1].ID)
}

func TestRegistry_Delete(t *testing.T) {
	reg := NewRegistry()
	reg.Save(NewRecord("sim-1", nil))

	require.NoError(t, reg.Delete("sim-1"))
	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, reg.Delete("sim-1"), ErrNotFound)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sim-%d", n)
			reg.Save(NewRecord(id, nil))
			_, _ = reg.Find(id)
			_ = reg.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, reg.Len())
}
