package remote

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/raster"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func unitROI() geometry.ROI {
	return geometry.FromGeometry(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
}

func startServer(t *testing.T, b Backend) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(b)
	go srv.Serve(lis)

	client, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return client
}

type capturingWriter struct {
	mu     sync.Mutex
	images []*raster.Image
	opts   []engine.ImageOptions
}

func (w *capturingWriter) WriteImage(_ context.Context, _ string, img *raster.Image, opts engine.ImageOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images = append(w.images, img)
	w.opts = append(w.opts, opts)
	return nil
}

func (w *capturingWriter) WriteFeatures(context.Context, string, geometry.ROI) error {
	return nil
}

func newEngine(t *testing.T, w engine.Writer) *engine.Engine {
	t.Helper()
	catalog := engine.NewMemoryCatalog()
	gt := [6]float64{0, 0.5, 0, 1, 0, -0.5}
	catalog.Add("S2", &engine.Scene{
		ID:   "s1",
		Date: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		Image: &raster.Image{Bands: []raster.Band{
			{Name: "R", Grid: raster.Filled(2, 2, gt, 0.2)},
			{Name: "NIR", Grid: raster.Filled(2, 2, gt, 0.6)},
		}},
	})
	store, err := export.NewStore(":memory:")
	require.NoError(t, err)
	e := engine.New(engine.Config{OutputDir: t.TempDir(), Workers: 1}, engine.NewEvaluator(catalog), store, w, nil)
	t.Cleanup(func() {
		e.Close()
		store.Close()
	})
	return e
}

func TestExportImageOverGRPC(t *testing.T) {
	ctx := context.Background()
	w := &capturingWriter{}
	client := startServer(t, newEngine(t, w))
	roi := unitROI()

	collection := expr.NewCollection("S2").
		FilterDate(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).
		FilterBounds(roi)
	img := collection.NormalizedDifference("NIR", "R", "NDVI").Select("NDVI").Mean().Clip(roi)

	job, err := client.ExportImage(ctx, export.ImageTask{
		Image:          img,
		Description:    "farm",
		Folder:         "All_Streams_Image_with_Indices",
		FilePrefix:     "farm_NDVI_NDMI_NDWI",
		Region:         roi,
		Scale:          10,
		Format:         export.FormatGeoTIFF,
		CloudOptimized: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, export.KindImage, job.Kind)

	done, err := client.Wait(ctx, job.ID, 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, export.StateCompleted, done.State, done.Error)

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.images, 1)
	assert.Equal(t, []string{"NDVI"}, w.images[0].BandNames())
	for _, v := range w.images[0].Bands[0].Grid.Data {
		assert.InDelta(t, 0.5, v, 1e-12)
	}
	assert.True(t, w.opts[0].CloudOptimized)
	assert.Equal(t, roi.Bound(), w.opts[0].Region.Bound())
}

func TestExportTableOverGRPC(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, newEngine(t, &capturingWriter{}))

	job, err := client.ExportTable(ctx, export.TableTask{
		Collection: unitROI(),
		Folder:     "Buffered Regions",
		FilePrefix: "farm_buffer",
		Format:     export.FormatShapefile,
	})
	require.NoError(t, err)
	assert.Equal(t, export.KindTable, job.Kind)

	done, err := client.Wait(ctx, job.ID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, export.StateCompleted, done.State)
}

func TestErrorCodes(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, newEngine(t, &capturingWriter{}))

	_, err := client.Status(ctx, "missing")
	assert.ErrorIs(t, err, export.ErrJobNotFound)

	_, err = client.ExportTable(ctx, export.TableTask{Collection: unitROI(), Format: export.FormatShapefile})
	assert.ErrorIs(t, err, export.ErrInvalidTask)
}

func TestStructRoundTrip(t *testing.T) {
	roi := unitROI()
	img := expr.NewCollection("S2").FilterBounds(roi).Select("B8").Mean().Clip(roi)

	s, err := toStruct(export.ImageTask{Image: img, Region: roi, Scale: 10})
	require.NoError(t, err)

	var decoded export.ImageTask
	require.NoError(t, fromStruct(s, &decoded))
	assert.Equal(t, img.Node().Digest(), decoded.Image.Node().Digest())
	assert.Equal(t, 10.0, decoded.Scale)
	assert.Equal(t, roi.Bound(), decoded.Region.Bound())
}

// detailedROI is a circle around the unit square's centre with enough
// vertices that an image task carrying it exceeds gRPC's default 4MB limit.
func detailedROI(vertices int) geometry.ROI {
	ring := make(orb.Ring, 0, vertices+1)
	for i := range vertices {
		a := 2 * math.Pi * float64(i) / float64(vertices)
		ring = append(ring, orb.Point{0.5 + 0.5*math.Cos(a), 0.5 + 0.5*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return geometry.FromGeometry(orb.Polygon{ring})
}

func TestExportImageWithDetailedRegion(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, newEngine(t, &capturingWriter{}))
	roi := detailedROI(70000)

	task := export.ImageTask{
		Image: expr.NewCollection("S2").FilterBounds(roi).
			NormalizedDifference("NIR", "R", "NDVI").Select("NDVI").Mean().Clip(roi),
		Folder:     "All_Streams_Image_with_Indices",
		FilePrefix: "detailed",
		Region:     roi,
		Scale:      10,
		Format:     export.FormatGeoTIFF,
	}
	s, err := toStruct(task)
	require.NoError(t, err)
	require.Greater(t, proto.Size(s), 4*1024*1024)

	job, err := client.ExportImage(ctx, task)
	require.NoError(t, err)
	done, err := client.Wait(ctx, job.ID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, export.StateCompleted, done.State, done.Error)
}
