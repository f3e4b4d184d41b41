package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testROI() geometry.ROI {
	return geometry.FromGeometry(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
}

func TestImageTaskValidate(t *testing.T) {
	valid := ImageTask{
		Image:      expr.NewCollection("S2").Select("B4").Mean(),
		FilePrefix: "farm_NDVI_NDMI_NDWI",
		Folder:     "All_Streams_Image_with_Indices",
		Region:     testROI(),
		Scale:      10,
		Format:     FormatGeoTIFF,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ImageTask)
	}{
		{"no image", func(t *ImageTask) { t.Image = expr.Image{} }},
		{"zero scale", func(t *ImageTask) { t.Scale = 0 }},
		{"wrong format", func(t *ImageTask) { t.Format = FormatShapefile }},
		{"empty prefix", func(t *ImageTask) { t.FilePrefix = "" }},
		{"path in folder", func(t *ImageTask) { t.Folder = "../etc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := valid
			tt.mutate(&task)
			assert.ErrorIs(t, task.Validate(), ErrInvalidTask)
		})
	}
}

func TestTableTaskValidate(t *testing.T) {
	task := TableTask{Collection: testROI(), Folder: "Buffered Regions", FilePrefix: "farm_buffer", Format: FormatShapefile}
	require.NoError(t, task.Validate())

	task.Collection = geometry.ROI{}
	assert.ErrorIs(t, task.Validate(), ErrInvalidTask)
}

func TestDestination(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "Buffered Regions", "farm_buffer.shp"),
		Destination("out", "Buffered Regions", "farm_buffer", FormatShapefile))
	assert.Equal(t, filepath.Join("out", "f", "p.tif"), Destination("out", "f", "p", FormatGeoTIFF))
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := NewJob(KindImage, "farm composite", "out/farm.tif")
	require.Equal(t, StateReady, job.State)
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, StateReady, got.State)
	assert.Equal(t, "out/farm.tif", got.Destination)

	require.NoError(t, s.UpdateState(ctx, job.ID, StateRunning, ""))
	require.NoError(t, s.UpdateState(ctx, job.ID, StateFailed, "boom"))

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "boom", got.Error)

	failed, err := s.List(ctx, StateFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	ready, err := s.List(ctx, StateReady)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateState(ctx, "missing", StateRunning, ""), ErrJobNotFound)
}

func TestNewStoreRejectsUnusableDatabase(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "jobs.db"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "jobs.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database, just plain text padding the header"), 0644))
	_, err = NewStore(path)
	assert.Error(t, err)

	// a fresh store opens at the same path after the failed attempt
	require.NoError(t, os.Remove(path))
	s, err := NewStore(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

type scriptedSource struct {
	states []State
	calls  int
}

func (s *scriptedSource) Status(_ context.Context, id string) (Job, error) {
	if id == "" {
		return Job{}, ErrJobNotFound
	}
	state := s.states[min(s.calls, len(s.states)-1)]
	s.calls++
	return Job{ID: id, State: state}, nil
}

func TestWait(t *testing.T) {
	src := &scriptedSource{states: []State{StateReady, StateRunning, StateCompleted}}
	job, err := Wait(context.Background(), src, "job", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 3, src.calls)

	_, err = Wait(context.Background(), src, "", time.Millisecond)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestWaitHonoursContext(t *testing.T) {
	src := &scriptedSource{states: []State{StateRunning}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	job, err := Wait(ctx, src, "job", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, job.State)
}
