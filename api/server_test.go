package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-service/dashboard"
	"airquality-service/datasource"
	"airquality-service/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reading(label string, v float64) models.AirQualityReading {
	return models.AirQualityReading{LocationLabel: label, RawValue: &v, CategoryLabel: "x"}
}

type fakeRefresher struct {
	result   models.RankingResult
	err      error
	triggers *int
}

func (f fakeRefresher) RefreshNow(ctx context.Context) (models.RankingResult, error) {
	return f.result, f.err
}

func (f fakeRefresher) Trigger() {
	if f.triggers != nil {
		*f.triggers++
	}
}

type fakeReports struct{}

func (fakeReports) Report(ctx context.Context, q dashboard.Query) (models.LocationReport, error) {
	if q.City == "" || q.Country == "" {
		return models.LocationReport{}, dashboard.ErrInvalidQuery
	}
	return models.LocationReport{City: q.City, Country: q.Country, Note: "General weather conditions observed."}, nil
}

type fakeStations struct {
	got datasource.Bounds
}

func (f *fakeStations) MapStations(ctx context.Context, b datasource.Bounds) ([]models.Observation, error) {
	f.got = b
	return []models.Observation{{Location: "a", Value: 250}}, nil
}

func (f *fakeStations) NearbyStations(ctx context.Context, lat, lon, radiusDeg float64, limit int) ([]models.Observation, error) {
	return nil, nil
}

func newTestServer(deps Deps) http.Handler {
	deps.Logger = quietLogger()
	return NewServer(deps, ":0").Handler()
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(Deps{Store: NewRankingStore(5)})

	rec, body := do(t, h, http.MethodGet, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["rankingPending"])
}

func TestCategory(t *testing.T) {
	h := newTestServer(Deps{})

	rec, body := do(t, h, http.MethodGet, "/api/aqi/category?value=151")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Unhealthy", body["category"])
	assert.Equal(t, "#FE6A69", body["color"])

	_, body = do(t, h, http.MethodGet, "/api/aqi/category?value=abc")
	assert.Equal(t, "Unknown", body["category"])
	assert.Equal(t, "#808080", body["color"])

	_, body = do(t, h, http.MethodGet, "/api/aqi/category?index=4")
	assert.Equal(t, "Poor (4)", body["category"])
	assert.Equal(t, "OWM_INDEX", body["scale"])
	assert.Equal(t, 4.0, body["value"])
	assert.Equal(t, "#808080", body["color"])

	_, body = do(t, h, http.MethodGet, "/api/aqi/category?index=9")
	assert.Equal(t, "Unknown", body["category"])
	assert.Nil(t, body["value"])

	rec, _ = do(t, h, http.MethodGet, "/api/aqi/category")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBands(t *testing.T) {
	h := newTestServer(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/aqi/bands", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var bands []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bands))
	require.Len(t, bands, 6)
	assert.Equal(t, "Good", bands[0]["label"])
	assert.Equal(t, 0.0, bands[0]["low"])
	assert.Equal(t, 500.0, bands[5]["high"])
}

func TestGetRanking_PendingThenSorted(t *testing.T) {
	store := NewRankingStore(5)
	h := newTestServer(Deps{Store: store})

	_, body := do(t, h, http.MethodGet, "/api/ranking")
	assert.Equal(t, true, body["pending"])
	assert.Nil(t, body["ranking"])

	store.UpdateRanking(models.RankingResult{
		ID:      "r1",
		Entries: []models.AirQualityReading{reading("a", 42), reading("b", 187), reading("c", 5)},
		Errors:  []string{"e1", "e2", "e3"},
	})

	rec, body := do(t, h, http.MethodGet, "/api/ranking?top=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["pending"])

	ranking := body["ranking"].(map[string]any)
	entries := ranking["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].(map[string]any)["location"])
	assert.Equal(t, "a", entries[1].(map[string]any)["location"])
	assert.Equal(t, float64(3), ranking["count"])
	assert.Equal(t, "e1; e2...", ranking["errorSummary"])
}

func TestGetRanking_BadTop(t *testing.T) {
	h := newTestServer(Deps{Store: NewRankingStore(5)})
	rec, _ := do(t, h, http.MethodGet, "/api/ranking?top=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRanking_ShowsFailure(t *testing.T) {
	store := NewRankingStore(5)
	store.RecordFailure(fmt.Errorf("ranking: WAQI %w", datasource.ErrMissingAPIKey))
	h := newTestServer(Deps{Store: store})

	_, body := do(t, h, http.MethodGet, "/api/ranking")

	assert.Equal(t, true, body["pending"])
	assert.Equal(t, "ranking: WAQI API key missing", body["failure"])
}

func TestGetRankingByID(t *testing.T) {
	store := NewRankingStore(5)
	store.UpdateRanking(models.RankingResult{ID: "abc"})
	h := newTestServer(Deps{Store: store})

	rec, body := do(t, h, http.MethodGet, "/api/ranking/abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", body["id"])

	rec, _ = do(t, h, http.MethodGet, "/api/ranking/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshRanking(t *testing.T) {
	h := newTestServer(Deps{Refresher: fakeRefresher{result: models.RankingResult{ID: "new"}}})
	rec, body := do(t, h, http.MethodPost, "/api/ranking/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", body["id"])

	h = newTestServer(Deps{Refresher: fakeRefresher{err: fmt.Errorf("ranking: WAQI %w", datasource.ErrMissingAPIKey)}})
	rec, _ = do(t, h, http.MethodPost, "/api/ranking/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h = newTestServer(Deps{Refresher: fakeRefresher{err: errors.New("boom")}})
	rec, _ = do(t, h, http.MethodPost, "/api/ranking/refresh")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefreshRanking_Async(t *testing.T) {
	triggers := 0
	h := newTestServer(Deps{Refresher: fakeRefresher{err: errors.New("unused"), triggers: &triggers}})

	rec, body := do(t, h, http.MethodPost, "/api/ranking/refresh?async=true")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "refresh scheduled", body["status"])
	assert.Equal(t, 1, triggers)
}

func TestDashboard(t *testing.T) {
	h := newTestServer(Deps{Reports: fakeReports{}})

	rec, body := do(t, h, http.MethodGet, "/api/dashboard?city=Dhaka&country=Bangladesh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dhaka", body["city"])

	rec, _ = do(t, h, http.MethodGet, "/api/dashboard?city=Dhaka")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStationMap(t *testing.T) {
	stations := &fakeStations{}
	h := newTestServer(Deps{Stations: stations})

	rec, body := do(t, h, http.MethodGet, "/api/stations/map?lat1=10&lon1=20&lat2=11&lon2=21")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, datasource.Bounds{Lat1: 10, Lon1: 20, Lat2: 11, Lon2: 21}, stations.got)
	list := body["stations"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Very Unhealthy", list[0].(map[string]any)["category"])

	rec, _ = do(t, h, http.MethodGet, "/api/stations/map")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, datasource.World, stations.got)

	rec, _ = do(t, h, http.MethodGet, "/api/stations/map?lat1=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/stations/map?lat1=50&lat2=10")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRankingStore_HistoryAndPrune(t *testing.T) {
	store := NewRankingStore(2)
	old := time.Now().Add(-time.Hour)
	store.UpdateRanking(models.RankingResult{ID: "1", CompletedAt: old})
	store.UpdateRanking(models.RankingResult{ID: "2", CompletedAt: old})
	store.UpdateRanking(models.RankingResult{ID: "3", CompletedAt: old})

	_, ok := store.GetRanking("1")
	assert.False(t, ok)

	assert.Equal(t, 1, store.PruneOldRankings(time.Minute))
	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "3", latest.ID)
	_, ok = store.GetRanking("3")
	assert.True(t, ok)
}

func TestRankingStore_FailureClearedBySuccess(t *testing.T) {
	store := NewRankingStore(2)
	store.RecordFailure(errors.New("down"))
	msg, _ := store.LastFailure()
	assert.Equal(t, "down", msg)

	require.NoError(t, store.Publish(context.Background(), models.RankingResult{ID: "x"}))
	msg, _ = store.LastFailure()
	assert.Empty(t, msg)
}

func TestHub_StreamsRankings(t *testing.T) {
	store := NewRankingStore(2)
	store.UpdateRanking(models.RankingResult{ID: "initial"})
	hub := NewHub(store.Latest, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(Deps{Hub: hub, Logger: quietLogger()}, ":0").Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readID := func() string {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type    string             `json:"type"`
			Payload models.RankingView `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "ranking", msg.Type)
		return msg.Payload.ID
	}

	assert.Equal(t, "initial", readID())

	pubCtx, pubCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pubCancel()
	require.NoError(t, hub.Publish(pubCtx, models.RankingResult{ID: "next", Entries: []models.AirQualityReading{reading("a", 1)}}))
	assert.Equal(t, "next", readID())
}

func TestHub_PublishAfterStop(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.Error(t, hub.Publish(context.Background(), models.RankingResult{}))
}
