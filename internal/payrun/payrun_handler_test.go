package payrun_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gigpay/internal/payrun"
	payrunerrors "gigpay/internal/payrun/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func mustDecodeEnvelope(t *testing.T, body []byte) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	err := json.Unmarshal(body, &env)
	assert.NoError(t, err)
	return env
}

type fakeRunService struct {
	createFn          func(ctx context.Context, companyID, actorID string, req payrun.CreateRunRequest) (payrun.RunResponse, error)
	getAllFn          func(ctx context.Context, companyID string, status string) ([]payrun.RunResponse, error)
	getByIDFn         func(ctx context.Context, companyID, id string) (payrun.RunResponse, error)
	deleteFn          func(ctx context.Context, companyID, id string) error
	getItemsFn        func(ctx context.Context, companyID, id string) ([]payrun.ItemResponse, error)
	addItemFn         func(ctx context.Context, companyID, actorID, id string, req payrun.AddItemRequest) (payrun.ItemResponse, error)
	removeItemFn      func(ctx context.Context, companyID, id, itemID string) error
	generateItemsFn   func(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error)
	submitFn          func(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error)
	approveFn         func(ctx context.Context, companyID, approverID, id string) (payrun.RunResponse, error)
	rejectFn          func(ctx context.Context, companyID, actorID, id string, req payrun.RejectRunRequest) (payrun.RunResponse, error)
	beginProcessingFn func(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error)
	retryFailedFn     func(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error)
	requestStopFn     func(ctx context.Context, companyID, actorID, id string) error
	getProgressFn     func(ctx context.Context, companyID, id string) (payrun.ProgressResponse, error)
	summarizeFn       func(ctx context.Context, companyID, id string) (payrun.RunSummaryResponse, error)
}

func (f *fakeRunService) Create(ctx context.Context, companyID, actorID string, req payrun.CreateRunRequest) (payrun.RunResponse, error) {
	return f.createFn(ctx, companyID, actorID, req)
}

func (f *fakeRunService) GetAll(ctx context.Context, companyID string, status string) ([]payrun.RunResponse, error) {
	return f.getAllFn(ctx, companyID, status)
}

func (f *fakeRunService) GetByID(ctx context.Context, companyID, id string) (payrun.RunResponse, error) {
	return f.getByIDFn(ctx, companyID, id)
}

func (f *fakeRunService) Delete(ctx context.Context, companyID, id string) error {
	return f.deleteFn(ctx, companyID, id)
}

func (f *fakeRunService) GetItems(ctx context.Context, companyID, id string) ([]payrun.ItemResponse, error) {
	return f.getItemsFn(ctx, companyID, id)
}

func (f *fakeRunService) AddItem(ctx context.Context, companyID, actorID, id string, req payrun.AddItemRequest) (payrun.ItemResponse, error) {
	return f.addItemFn(ctx, companyID, actorID, id, req)
}

func (f *fakeRunService) RemoveItem(ctx context.Context, companyID, id, itemID string) error {
	return f.removeItemFn(ctx, companyID, id, itemID)
}

func (f *fakeRunService) GenerateItems(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error) {
	return f.generateItemsFn(ctx, companyID, actorID, id)
}

func (f *fakeRunService) SubmitForApproval(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error) {
	return f.submitFn(ctx, companyID, actorID, id)
}

func (f *fakeRunService) Approve(ctx context.Context, companyID, approverID, id string) (payrun.RunResponse, error) {
	return f.approveFn(ctx, companyID, approverID, id)
}

func (f *fakeRunService) Reject(ctx context.Context, companyID, actorID, id string, req payrun.RejectRunRequest) (payrun.RunResponse, error) {
	return f.rejectFn(ctx, companyID, actorID, id, req)
}

func (f *fakeRunService) BeginProcessing(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error) {
	return f.beginProcessingFn(ctx, companyID, actorID, id)
}

func (f *fakeRunService) RetryFailed(ctx context.Context, companyID, actorID, id string) (payrun.RunResponse, error) {
	return f.retryFailedFn(ctx, companyID, actorID, id)
}

func (f *fakeRunService) RequestStop(ctx context.Context, companyID, actorID, id string) error {
	return f.requestStopFn(ctx, companyID, actorID, id)
}

func (f *fakeRunService) GetProgress(ctx context.Context, companyID, id string) (payrun.ProgressResponse, error) {
	return f.getProgressFn(ctx, companyID, id)
}

func (f *fakeRunService) Summarize(ctx context.Context, companyID, id string) (payrun.RunSummaryResponse, error) {
	return f.summarizeFn(ctx, companyID, id)
}

func TestRunHandler_Create(t *testing.T) {
	companyID := uuid.New().String()
	actorID := uuid.New().String()

	svc := &fakeRunService{
		createFn: func(ctx context.Context, cid, aid string, req payrun.CreateRunRequest) (payrun.RunResponse, error) {
			assert.Equal(t, companyID, cid)
			assert.Equal(t, actorID, aid)
			assert.Equal(t, "2026-08-01", req.PeriodStart)
			return payrun.RunResponse{ID: uuid.New().String(), Status: payrun.StatusDraft, CompanyID: cid, CreatedBy: aid}, nil
		},
	}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	body := `{"period_start":"2026-08-01","period_end":"2026-08-14"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("company_id", companyID)
	c.Set("user_id_validated", actorID)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	env := mustDecodeEnvelope(t, w.Body.Bytes())
	assert.True(t, env.Ok)
}

func TestRunHandler_Process(t *testing.T) {
	companyID := uuid.New().String()
	actorID := uuid.New().String()
	runID := uuid.New().String()

	t.Run("accepted", func(t *testing.T) {
		svc := &fakeRunService{
			beginProcessingFn: func(ctx context.Context, cid, aid, id string) (payrun.RunResponse, error) {
				assert.Equal(t, runID, id)
				return payrun.RunResponse{ID: id, Status: payrun.StatusProcessing}, nil
			},
		}

		h := payrun.NewHandler(svc)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs/"+runID+"/process", nil)
		c.Params = []gin.Param{{Key: "id", Value: runID}}
		c.Set("company_id", companyID)
		c.Set("user_id_validated", actorID)

		h.Process(c)

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("double process conflicts", func(t *testing.T) {
		svc := &fakeRunService{
			beginProcessingFn: func(ctx context.Context, cid, aid, id string) (payrun.RunResponse, error) {
				return payrun.RunResponse{}, payrunerrors.ErrRunAlreadyProcessing
			},
		}

		h := payrun.NewHandler(svc)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs/"+runID+"/process", nil)
		c.Params = []gin.Param{{Key: "id", Value: runID}}
		c.Set("company_id", companyID)
		c.Set("user_id_validated", actorID)

		h.Process(c)

		assert.Equal(t, http.StatusConflict, w.Code)
		env := mustDecodeEnvelope(t, w.Body.Bytes())
		assert.False(t, env.Ok)
		assert.Equal(t, "CONFLICT", env.Error.Code)
	})
}

func TestRunHandler_Reject_RequiresReason(t *testing.T) {
	svc := &fakeRunService{}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs/123/reject", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = []gin.Param{{Key: "id", Value: "123"}}
	c.Set("company_id", uuid.New().String())
	c.Set("user_id_validated", uuid.New().String())

	h.Reject(c)

	// binding rejects the empty reason before the service is reached
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := mustDecodeEnvelope(t, w.Body.Bytes())
	assert.False(t, env.Ok)
}

func TestRunHandler_Submit_InvalidState(t *testing.T) {
	svc := &fakeRunService{
		submitFn: func(ctx context.Context, cid, aid, id string) (payrun.RunResponse, error) {
			return payrun.RunResponse{}, payrunerrors.ErrRunHasNoItems
		},
	}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs/123/submit", nil)
	c.Params = []gin.Param{{Key: "id", Value: "123"}}
	c.Set("company_id", uuid.New().String())
	c.Set("user_id_validated", uuid.New().String())

	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := mustDecodeEnvelope(t, w.Body.Bytes())
	assert.False(t, env.Ok)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
}

func TestRunHandler_GetProgress(t *testing.T) {
	companyID := uuid.New().String()
	runID := uuid.New().String()

	svc := &fakeRunService{
		getProgressFn: func(ctx context.Context, cid, id string) (payrun.ProgressResponse, error) {
			assert.Equal(t, companyID, cid)
			assert.Equal(t, runID, id)
			return payrun.ProgressResponse{
				RunID:         runID,
				RunStatus:     payrun.StatusProcessing,
				TotalItems:    10,
				CompletionPct: 60,
			}, nil
		},
	}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/payroll-runs/"+runID+"/progress", nil)
	c.Params = []gin.Param{{Key: "id", Value: runID}}
	c.Set("company_id", companyID)

	h.GetProgress(c)

	assert.Equal(t, http.StatusOK, w.Code)
	env := mustDecodeEnvelope(t, w.Body.Bytes())
	assert.True(t, env.Ok)

	var progress payrun.ProgressResponse
	assert.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, 60.0, progress.CompletionPct)
}

func TestRunHandler_Stop(t *testing.T) {
	companyID := uuid.New().String()
	runID := uuid.New().String()

	stopRequested := false
	svc := &fakeRunService{
		requestStopFn: func(ctx context.Context, cid, aid, id string) error {
			stopRequested = true
			assert.Equal(t, runID, id)
			return nil
		},
	}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payroll-runs/"+runID+"/stop", nil)
	c.Params = []gin.Param{{Key: "id", Value: runID}}
	c.Set("company_id", companyID)
	c.Set("user_id_validated", uuid.New().String())

	h.Stop(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, stopRequested)
}

func TestRunHandler_GetById_NotFound(t *testing.T) {
	svc := &fakeRunService{
		getByIDFn: func(ctx context.Context, cid, id string) (payrun.RunResponse, error) {
			return payrun.RunResponse{}, payrunerrors.ErrRunNotFound
		},
	}

	h := payrun.NewHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/payroll-runs/404", nil)
	c.Params = []gin.Param{{Key: "id", Value: "404"}}
	c.Set("company_id", uuid.New().String())

	h.GetById(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := mustDecodeEnvelope(t, w.Body.Bytes())
	assert.False(t, env.Ok)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
