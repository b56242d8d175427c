package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/moderation"
	"github.com/adboardhq/moderation-backend/internal/users"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubUsersService struct{}

func (stubUsersService) Create(ctx context.Context, input users.CreateUserInput) (*models.User, error) {
	return &models.User{ID: input.ID}, nil
}

func (stubUsersService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
}

type stubAdsService struct{}

func (stubAdsService) Create(ctx context.Context, input ads.CreateAdInput) (*models.Advertisement, error) {
	return &models.Advertisement{ItemID: input.ItemID}, nil
}

func (stubAdsService) GetSnapshot(ctx context.Context, itemID int64) (*ads.Snapshot, error) {
	return &ads.Snapshot{ItemID: itemID}, nil
}

func (stubAdsService) Close(ctx context.Context, itemID int64) (*ads.CloseResult, error) {
	return &ads.CloseResult{ItemID: itemID}, nil
}

type stubModerationReader struct{}

func (stubModerationReader) GetResult(ctx context.Context, taskID int64) (*moderation.ResultView, error) {
	return &moderation.ResultView{TaskID: taskID, Status: enums.ModerationPending}, nil
}

func (stubModerationReader) History(ctx context.Context, itemID int64, params pagination.Params) (*moderation.HistoryPage, error) {
	return &moderation.HistoryPage{}, nil
}

func (stubModerationReader) Predict(ctx context.Context, itemID int64) (*moderation.Prediction, error) {
	return &moderation.Prediction{ItemID: itemID}, nil
}

func (stubModerationReader) PredictPayload(ctx context.Context, payload ads.Snapshot) (*moderation.Prediction, error) {
	return &moderation.Prediction{ItemID: payload.ItemID}, nil
}

type stubSubmitter struct{}

func (stubSubmitter) Submit(ctx context.Context, itemID int64) (*moderation.ResultView, error) {
	return &moderation.ResultView{TaskID: 1, ItemID: itemID, Status: enums.ModerationPending}, nil
}

func newTestRouter(t *testing.T, dbErr error) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{err: dbErr}, stubPinger{}, stubUsersService{}, stubAdsService{}, stubModerationReader{}, stubSubmitter{})
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/healthz/live", "/healthz/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.Code)
		}
		if env := resp.Header().Get("X-Adboard-Env"); env != "test" {
			t.Fatalf("%s missing env header, got %q", path, env)
		}
	}
}

func TestRouterReadyFailsWhenDBDown(t *testing.T) {
	router := newTestRouter(t, context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodGet, "/healthz/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestRouterWiresModerationRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	cases := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/moderation_result/12", "", http.StatusOK},
		{http.MethodGet, "/simple_predict?item_id=3", "", http.StatusOK},
		{http.MethodGet, "/advertisements/3/moderation_results", "", http.StatusOK},
		{http.MethodGet, "/advertisements/3", "", http.StatusOK},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s %s returned %d, want %d", tc.method, tc.path, resp.Code, tc.status)
		}
	}
}

func TestRouterSetsRequestID(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Fatalf("expected request id passthrough, got %q", got)
	}
}
