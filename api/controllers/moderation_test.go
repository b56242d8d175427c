package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/moderation"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

type testModerationReader struct {
	getResultFn      func(ctx context.Context, taskID int64) (*moderation.ResultView, error)
	historyFn        func(ctx context.Context, itemID int64, params pagination.Params) (*moderation.HistoryPage, error)
	predictFn        func(ctx context.Context, itemID int64) (*moderation.Prediction, error)
	predictPayloadFn func(ctx context.Context, payload ads.Snapshot) (*moderation.Prediction, error)
}

func (s *testModerationReader) GetResult(ctx context.Context, taskID int64) (*moderation.ResultView, error) {
	if s.getResultFn != nil {
		return s.getResultFn(ctx, taskID)
	}
	return nil, nil
}

func (s *testModerationReader) History(ctx context.Context, itemID int64, params pagination.Params) (*moderation.HistoryPage, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, itemID, params)
	}
	return &moderation.HistoryPage{}, nil
}

func (s *testModerationReader) Predict(ctx context.Context, itemID int64) (*moderation.Prediction, error) {
	if s.predictFn != nil {
		return s.predictFn(ctx, itemID)
	}
	return nil, nil
}

func (s *testModerationReader) PredictPayload(ctx context.Context, payload ads.Snapshot) (*moderation.Prediction, error) {
	if s.predictPayloadFn != nil {
		return s.predictPayloadFn(ctx, payload)
	}
	return nil, nil
}

type testSubmitter struct {
	submitFn func(ctx context.Context, itemID int64) (*moderation.ResultView, error)
}

func (s *testSubmitter) Submit(ctx context.Context, itemID int64) (*moderation.ResultView, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, itemID)
	}
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestAsyncPredictAccepted(t *testing.T) {
	var submitted int64
	svc := &testSubmitter{
		submitFn: func(ctx context.Context, itemID int64) (*moderation.ResultView, error) {
			submitted = itemID
			return &moderation.ResultView{TaskID: 99, ItemID: itemID, Status: enums.ModerationPending}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/async_predict", strings.NewReader(`{"item_id":7}`))
	resp := httptest.NewRecorder()
	AsyncPredict(svc, testLogger())(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if submitted != 7 {
		t.Fatalf("unexpected item id %d", submitted)
	}
	var envelope struct {
		Data moderation.ResultView `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.TaskID != 99 || envelope.Data.Status != enums.ModerationPending {
		t.Fatalf("unexpected body %+v", envelope.Data)
	}
}

func TestAsyncPredictConflictDetails(t *testing.T) {
	svc := &testSubmitter{
		submitFn: func(ctx context.Context, itemID int64) (*moderation.ResultView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyPending, "a task is already pending for this item").
				WithDetails(map[string]any{"task_id": int64(41)})
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/async_predict", strings.NewReader(`{"item_id":7}`))
	resp := httptest.NewRecorder()
	AsyncPredict(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeAlreadyPending) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
	if envelope.Error.Details["task_id"] != float64(41) {
		t.Fatalf("expected existing task id in details, got %v", envelope.Error.Details)
	}
}

func TestAsyncPredictRejectsMissingItem(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/async_predict", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	AsyncPredict(&testSubmitter{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestModerationResultByTaskID(t *testing.T) {
	svc := &testModerationReader{
		getResultFn: func(ctx context.Context, taskID int64) (*moderation.ResultView, error) {
			if taskID != 15 {
				t.Fatalf("unexpected task id %d", taskID)
			}
			verdict := true
			return &moderation.ResultView{TaskID: taskID, Status: enums.ModerationCompleted, IsViolation: &verdict}, nil
		},
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/moderation_result/15", nil), "taskID", "15")
	resp := httptest.NewRecorder()
	ModerationResult(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data moderation.ResultView `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.IsViolation == nil || !*envelope.Data.IsViolation {
		t.Fatalf("expected violation verdict, got %+v", envelope.Data)
	}
}

func TestModerationResultRejectsBadTaskID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/moderation_result/abc", nil), "taskID", "abc")
	resp := httptest.NewRecorder()
	ModerationResult(&testModerationReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestModerationResultNotFound(t *testing.T) {
	svc := &testModerationReader{
		getResultFn: func(ctx context.Context, taskID int64) (*moderation.ResultView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "moderation task not found")
		},
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/moderation_result/3", nil), "taskID", "3")
	resp := httptest.NewRecorder()
	ModerationResult(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSimplePredictRequiresItemID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/simple_predict", nil)
	resp := httptest.NewRecorder()
	SimplePredict(&testModerationReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSimplePredictReturnsPrediction(t *testing.T) {
	svc := &testModerationReader{
		predictFn: func(ctx context.Context, itemID int64) (*moderation.Prediction, error) {
			return &moderation.Prediction{ItemID: itemID, IsViolation: false, Probability: 0.02}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/simple_predict?item_id=5", nil)
	resp := httptest.NewRecorder()
	SimplePredict(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data moderation.Prediction `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ItemID != 5 || envelope.Data.Probability != 0.02 {
		t.Fatalf("unexpected prediction %+v", envelope.Data)
	}
}

func TestPredictScoresPayload(t *testing.T) {
	var scored ads.Snapshot
	svc := &testModerationReader{
		predictPayloadFn: func(ctx context.Context, payload ads.Snapshot) (*moderation.Prediction, error) {
			scored = payload
			return &moderation.Prediction{ItemID: payload.ItemID, IsViolation: true, Probability: 0.9}, nil
		},
	}

	body := `{"item_id":3,"seller_id":1,"name":"bike","description":"city bike","category":2,"images_qty":1}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Predict(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if scored.ItemID != 3 || scored.Description != "city bike" {
		t.Fatalf("unexpected payload %+v", scored)
	}
}

func TestPredictRejectsMissingDescription(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"item_id":3}`))
	resp := httptest.NewRecorder()
	Predict(&testModerationReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestModerationHistoryPassesPagination(t *testing.T) {
	var gotParams pagination.Params
	svc := &testModerationReader{
		historyFn: func(ctx context.Context, itemID int64, params pagination.Params) (*moderation.HistoryPage, error) {
			if itemID != 8 {
				t.Fatalf("unexpected item id %d", itemID)
			}
			gotParams = params
			return &moderation.HistoryPage{
				Items:  []moderation.ResultView{{TaskID: 2, ItemID: itemID, Status: enums.ModerationFailed}},
				Cursor: "next-token",
			}, nil
		},
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/advertisements/8/moderation_results?limit=10&cursor=abc", nil), "itemID", "8")
	resp := httptest.NewRecorder()
	ModerationHistory(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotParams.Limit != 10 || gotParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
	var envelope struct {
		Data historyResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Cursor != "next-token" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestModerationHistoryRejectsHugeLimit(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/advertisements/8/moderation_results?limit=5000", nil), "itemID", "8")
	resp := httptest.NewRecorder()
	ModerationHistory(&testModerationReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
