package sentinel

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

func init() {
	godal.RegisterAll()
}

// sceneTIFF builds a 2x2 GeoTIFF with B04, B03, B08, B11 and SCL bands.
func sceneTIFF(t *testing.T, scl []float32) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.tif")
	ds, err := godal.Create(godal.GTiff, path, 5, godal.Float32, 2, 2)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 0.5, 0, 1, 0, -0.5}))

	values := []float32{0.1, 0.2, 0.5, 0.3}
	for i, band := range ds.Bands() {
		data := []float32{values[min(i, 3)], values[min(i, 3)], values[min(i, 3)], values[min(i, 3)]}
		if i == 4 {
			data = scl
		}
		require.NoError(t, band.Write(0, 0, data, 2, 2))
	}
	require.NoError(t, ds.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return content
}

type fakeAPI struct {
	server   *httptest.Server
	requests atomic.Int32
	status   int
	image    []byte
	// revoked client ids get no token; forbidden ids get a token the
	// process endpoint answers with 403
	revoked   map[string]bool
	forbidden map[string]bool
}

func newFakeAPI(t *testing.T, image []byte) *fakeAPI {
	api := &fakeAPI{status: http.StatusOK, image: image, revoked: map[string]bool{}, forbidden: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		clientID, _, ok := r.BasicAuth()
		if !ok {
			clientID = r.FormValue("client_id")
		}
		w.Header().Set("Content-Type", "application/json")
		if api.revoked[clientID] {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
			return
		}
		token := "token"
		if api.forbidden[clientID] {
			token = "forbidden"
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": token, "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/api/v1/process", func(w http.ResponseWriter, r *http.Request) {
		api.requests.Add(1)
		switch r.Header.Get("Authorization") {
		case "Bearer token":
		case "Bearer forbidden":
			w.WriteHeader(http.StatusForbidden)
			return
		default:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["evalscript"] == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(api.status)
		w.Write(api.image)
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) client(t *testing.T) *Client {
	return a.clientWith(t, []string{"id"}, []string{"secret"})
}

func (a *fakeAPI) clientWith(t *testing.T, ids, secrets []string) *Client {
	c, err := NewClient(ClientConfig{
		ProcessURL:    a.server.URL + "/api/v1/process",
		TokenURL:      a.server.URL + "/token",
		ClientIDs:     ids,
		ClientSecrets: secrets,
		Retries:       2,
		RetryDelay:    time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func unitROI() geometry.ROI {
	return geometry.FromGeometry(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
}

func TestCalculatePixels(t *testing.T) {
	assert.Equal(t, 1, calculatePixels(0, 10))
	assert.Equal(t, 111, calculatePixels(0.01, 10))
	assert.Equal(t, 2500, calculatePixels(5, 10))
}

func TestClientConfigValidate(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingSecrets)

	_, err = NewClient(ClientConfig{TokenURL: "x", ClientIDs: []string{"a", "b"}, ClientSecrets: []string{"s"}})
	assert.Error(t, err)
}

func TestRequestImage(t *testing.T) {
	api := newFakeAPI(t, []byte("tiff"))
	content, err := api.client(t).RequestImage(context.Background(), time.Now(), time.Now().Add(time.Hour), unitROI().Bound())
	require.NoError(t, err)
	assert.Equal(t, []byte("tiff"), content)
}

func TestRequestImageForbiddenStopsRetrying(t *testing.T) {
	api := newFakeAPI(t, nil)
	api.status = http.StatusForbidden

	_, err := api.client(t).RequestImage(context.Background(), time.Now(), time.Now().Add(time.Hour), unitROI().Bound())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), api.requests.Load())
}

func TestRequestImageRetries(t *testing.T) {
	api := newFakeAPI(t, []byte("busy"))
	api.status = http.StatusTooManyRequests

	_, err := api.client(t).RequestImage(context.Background(), time.Now(), time.Now().Add(time.Hour), unitROI().Bound())
	assert.Error(t, err)
	assert.Equal(t, int32(2), api.requests.Load())
}

func TestRequestImageFallsBackToNextCredentials(t *testing.T) {
	tests := map[string]func(api *fakeAPI){
		"token rejected":    func(api *fakeAPI) { api.revoked["first"] = true },
		"process forbidden": func(api *fakeAPI) { api.forbidden["first"] = true },
	}
	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			api := newFakeAPI(t, []byte("tiff"))
			setup(api)
			c := api.clientWith(t, []string{"first", "second"}, []string{"s1", "s2"})

			content, err := c.RequestImage(context.Background(), time.Now(), time.Now().Add(time.Hour), unitROI().Bound())
			require.NoError(t, err)
			assert.Equal(t, []byte("tiff"), content)
		})
	}
}

func TestRequestImageAllCredentialsForbidden(t *testing.T) {
	api := newFakeAPI(t, nil)
	api.forbidden["first"] = true
	api.forbidden["second"] = true

	_, err := api.clientWith(t, []string{"first", "second"}, []string{"s1", "s2"}).
		RequestImage(context.Background(), time.Now(), time.Now().Add(time.Hour), unitROI().Bound())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), api.requests.Load(), "one request per credential pair")
}

func TestCatalogScenesMasksClouds(t *testing.T) {
	api := newFakeAPI(t, sceneTIFF(t, []float32{4, 9, 4, 0}))
	catalog := NewCatalog(api.client(t), CatalogConfig{ImageDir: t.TempDir(), IntervalDays: 5, Workers: 2})

	q := engine.Query{
		Dataset: Dataset,
		Start:   time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2023, 5, 11, 0, 0, 0, 0, time.UTC),
		Region:  unitROI(),
	}
	scenes, err := catalog.Scenes(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.True(t, scenes[0].Date.Before(scenes[1].Date))
	assert.Equal(t, []string{"B4", "B3", "B8", "B11"}, scenes[0].Image.BandNames())

	nir, ok := scenes[0].Image.Band("B8")
	require.True(t, ok)
	assert.InDelta(t, 0.5, nir.At(0, 0), 1e-6)
	assert.True(t, math.IsNaN(nir.At(1, 0)))
	assert.True(t, math.IsNaN(nir.At(1, 1)))
	assert.Equal(t, 2, nir.ValidCount())

	_, err = catalog.Scenes(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.requests.Load(), "downloaded scenes are reused")
}

func TestCatalogRemembersCloudyDates(t *testing.T) {
	api := newFakeAPI(t, sceneTIFF(t, []float32{9, 9, 8, 3}))
	catalog := NewCatalog(api.client(t), CatalogConfig{ImageDir: t.TempDir(), IntervalDays: 5})

	q := engine.Query{
		Dataset: Dataset,
		Start:   time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC),
		Region:  unitROI(),
	}
	scenes, err := catalog.Scenes(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, scenes)

	_, err = catalog.Scenes(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.requests.Load())
}

func TestCatalogRejectsUnboundedQuery(t *testing.T) {
	catalog := NewCatalog(nil, CatalogConfig{ImageDir: t.TempDir()})

	_, err := catalog.Scenes(context.Background(), engine.Query{Dataset: Dataset})
	assert.Error(t, err)
	_, err = catalog.Scenes(context.Background(), engine.Query{Dataset: "other"})
	assert.Error(t, err)
}

type countingRequester struct {
	mu    sync.Mutex
	calls map[time.Time]int
	image []byte
}

func (r *countingRequester) RequestImage(_ context.Context, start, _ time.Time, _ orb.Bound) ([]byte, error) {
	r.mu.Lock()
	r.calls[start]++
	r.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	return r.image, nil
}

func TestCatalogSharesConcurrentDownloads(t *testing.T) {
	requester := &countingRequester{calls: map[time.Time]int{}, image: sceneTIFF(t, []float32{4, 4, 4, 4})}
	catalog := NewCatalog(requester, CatalogConfig{ImageDir: t.TempDir(), IntervalDays: 5, Workers: 2})
	q := engine.Query{
		Dataset: Dataset,
		Start:   time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2023, 5, 11, 0, 0, 0, 0, time.UTC),
		Region:  unitROI(),
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	counts := make([]int, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scenes, err := catalog.Scenes(context.Background(), q)
			errs[i] = err
			counts[i] = len(scenes)
		}()
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, counts[i])
	}
	requester.mu.Lock()
	defer requester.mu.Unlock()
	require.Len(t, requester.calls, 2)
	for date, n := range requester.calls {
		assert.Equal(t, 1, n, date.Format(time.DateOnly))
	}
}
