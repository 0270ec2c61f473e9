package cerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestCodeOfAndMessage(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("saving: %w", NewError(Internal, "task could not be saved", base))

	assert.Equal(t, Internal, CodeOf(err))
	assert.True(t, IsCode(err, Internal))
	assert.Equal(t, "task could not be saved: disk full", Message(err))
	assert.ErrorIs(t, err, base)

	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Unknown, CodeOf(base))
	assert.Equal(t, "disk full", Message(base))
}

func TestNewError_StackOnlyForServerErrors(t *testing.T) {
	assert.NotEmpty(t, NewError(Internal, "boom", nil).Stack)
	assert.Empty(t, NewError(NotFound, "missing", nil).Stack)
}

func TestWrapDBReadError(t *testing.T) {
	assert.True(t, IsCode(WrapDBReadError("task", gorm.ErrRecordNotFound), NotFound))
	assert.True(t, IsCode(WrapDBReadError("task", errors.New("locked")), Internal))
}

func TestRetryable(t *testing.T) {
	assert.True(t, ResourceExhausted.Retryable())
	assert.True(t, Unavailable.Retryable())
	assert.False(t, InvalidArgument.Retryable())
	assert.False(t, NotFound.Retryable())
}

func TestConvertErrorChiMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(ctx context.Context)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "response",
			handler:    func(ctx context.Context) { SetJSONResponse(ctx, map[string]int{"task_id": 3}) },
			wantStatus: http.StatusOK,
			wantBody:   `{"task_id":3}` + "\n",
		},
		{
			name: "response with status",
			handler: func(ctx context.Context) {
				SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]string{"status": "saved"})
			},
			wantStatus: http.StatusCreated,
			wantBody:   `{"status":"saved"}` + "\n",
		},
		{
			name:       "coded error",
			handler:    func(ctx context.Context) { SetNewJSONError(ctx, NotFound, "task not found", nil) },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"code":"not_found","message":"task not found"}` + "\n",
		},
		{
			name:       "foreign error",
			handler:    func(ctx context.Context) { SetJSONError(ctx, errors.New("boom")) },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":"unknown","message":"unknown error"}` + "\n",
		},
		{
			name:       "canceled",
			handler:    func(ctx context.Context) { SetJSONError(ctx, context.Canceled) },
			wantStatus: 499,
			wantBody:   `{"code":"canceled","message":"connection closed"}` + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewConvertErrorChiMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				tt.handler(r.Context())
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}
