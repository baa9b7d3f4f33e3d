package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-service/models"
)

func waqiServer(t *testing.T, handler http.HandlerFunc) *WAQIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWAQIProviderWithClient("test-token", srv.URL, srv.Client())
}

func TestWAQI_FetchStationOK(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feed/@1437/", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Write([]byte(`{"status":"ok","data":{"aqi":187,"city":{"name":"Delhi","geo":[28.6,77.2],"url":"https://aqicn.org/city/delhi"},"time":{"v":1700000000}}}`))
	})

	obs, err := p.FetchStation(context.Background(), "@1437")

	require.NoError(t, err)
	assert.Equal(t, "Delhi", obs.Location)
	assert.Equal(t, 187.0, obs.Value)
	require.NotNil(t, obs.Lat)
	assert.Equal(t, 28.6, *obs.Lat)
	assert.Equal(t, time.Unix(1700000000, 0), obs.Observed)
}

func TestWAQI_FetchStationFallsBackToIdentifier(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","data":{"aqi":"42","city":{}}}`))
	})

	obs, err := p.FetchStation(context.Background(), "lima")

	require.NoError(t, err)
	assert.Equal(t, "lima", obs.Location)
	assert.Equal(t, 42.0, obs.Value)
}

func TestWAQI_FetchStationKeepsSlashesInCityPaths(t *testing.T) {
	tests := []struct {
		id   string
		path string
	}{
		{"jakarta/central", "/feed/jakarta/central/"},
		{"@1437", "/feed/@1437/"},
		{"sao paulo", "/feed/sao%20paulo/"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var escaped string
			p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
				escaped = r.URL.EscapedPath()
				w.Write([]byte(`{"status":"ok","data":{"aqi":61,"city":{"name":"x"}}}`))
			})

			_, err := p.FetchStation(context.Background(), tt.id)

			require.NoError(t, err)
			assert.Equal(t, tt.path, escaped)
		})
	}
}

func TestWAQI_FetchStationSoftFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown station", `{"status":"error","data":"Unknown station"}`},
		{"non-numeric aqi", `{"status":"ok","data":{"aqi":"-","city":{"name":"x"}}}`},
		{"unexpected status", `{"status":"nope","data":"can not connect"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := p.FetchStation(context.Background(), "somewhere")

			assert.ErrorIs(t, err, ErrNoReading)
		})
	}
}

func TestWAQI_InvalidKeyIsIdenticalAcrossLocations(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","data":"Invalid key"}`))
	})

	_, errA := p.FetchStation(context.Background(), "paris")
	_, errB := p.FetchStation(context.Background(), "london")

	require.ErrorIs(t, errA, ErrInvalidAPIKey)
	require.ErrorIs(t, errB, ErrInvalidAPIKey)
	assert.Equal(t, errA.Error(), errB.Error())
}

func TestWAQI_HTTPUnauthorized(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.FetchStation(context.Background(), "paris")

	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "WAQI", perr.Provider)
}

func TestWAQI_OtherErrorIsHard(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","data":"Over quota"}`))
	})

	_, err := p.FetchStation(context.Background(), "paris")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoReading)
	assert.Contains(t, err.Error(), "Over quota")
}

func TestWAQI_ServerErrorIsHardAndKeyFree(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := p.FetchStation(context.Background(), "paris")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoReading)
	assert.NotContains(t, err.Error(), "test-token")
}

func TestWAQI_MissingTokenNeverDispatches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	p := NewWAQIProviderWithClient("", srv.URL, srv.Client())

	_, err := p.FetchStation(context.Background(), "paris")

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestWAQI_NearbyStations(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/map/bounds/", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("networks"))
		w.Write([]byte(`{"status":"ok","data":[
			{"lat":10.0,"lon":20.0,"aqi":"300","station":{"name":"self"}},
			{"lat":10.2,"lon":20.1,"aqi":"55","station":{"name":"north"}},
			{"lat":9.8,"lon":19.9,"aqi":"120","station":{"name":"south"}},
			{"lat":10.1,"lon":20.3,"aqi":"-","station":{"name":"offline"}},
			{"lat":10.3,"lon":20.2,"aqi":80,"station":{}}
		]}`))
	})

	got, err := p.NearbyStations(context.Background(), 10.0, 20.0, 0.5, 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "south", got[0].Location)
	assert.Equal(t, 120.0, got[0].Value)
	assert.Equal(t, "Unknown Station", got[1].Location)
}

func TestWAQI_MapStationsClampsBounds(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("networks"))
		assert.Equal(t, "-90.0000,-180.0000,90.0000,180.0000", r.URL.Query().Get("latlng"))
		w.Write([]byte(`{"status":"ok","data":[
			{"lat":1,"lon":2,"aqi":"12","station":{"name":"a"}},
			{"aqi":"40","station":{"name":"no coords"}}
		]}`))
	})

	got, err := p.MapStations(context.Background(), Bounds{Lat1: -100, Lon1: -200, Lat2: 100, Lon2: 200})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Location)
}

func TestWAQI_MapStationsInvalidKey(t *testing.T) {
	p := waqiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","data":"Invalid key"}`))
	})

	_, err := p.MapStations(context.Background(), World)

	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

type stubFeed struct {
	calls int32
}

func (s *stubFeed) Name() string { return "WAQI" }

func (s *stubFeed) FetchStation(ctx context.Context, id string) (models.Observation, error) {
	atomic.AddInt32(&s.calls, 1)
	return models.Observation{Location: id, Value: 10}, nil
}

func TestRateLimitedFeed(t *testing.T) {
	feed := &stubFeed{}
	limited := NewRateLimitedFeed(feed, 0.001, 1)
	assert.Equal(t, "WAQI [Rate Limited]", limited.Name())

	// the single burst token is available immediately
	_, err := limited.FetchStation(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.FetchStation(ctx, "b")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&feed.calls))
}
