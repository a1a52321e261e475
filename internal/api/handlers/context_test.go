package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestGetContextRequest_Options(t *testing.T) {
	off := false

	opts := getContextRequest{}.options()
	assert.True(t, opts.IncludeHistory)
	assert.True(t, opts.IncludePreferences)
	assert.True(t, opts.IncludeGoals)
	assert.Equal(t, 0, opts.MaxContextLength, "service default applies")
	assert.Equal(t, domain.DefaultHistoryLimit, opts.HistoryLimit)

	opts = getContextRequest{IncludeGoals: &off, MaxContextLength: 200, HistoryLimit: 8}.options()
	assert.True(t, opts.IncludeHistory)
	assert.False(t, opts.IncludeGoals)
	assert.Equal(t, 200, opts.MaxContextLength)
	assert.Equal(t, 8, opts.HistoryLimit)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUserIDMissing, http.StatusBadRequest},
		{service.ErrSessionIDMissing, http.StatusBadRequest},
		{domain.NewProviderError(domain.CodeClientNotAvailable, "append_turn", nil), http.StatusServiceUnavailable},
		{domain.NewProviderError(domain.CodeNotFound, "goals", nil), http.StatusNotFound},
		{domain.NewProviderError(domain.CodeStorageFailed, "append_turn", errors.New("disk full")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tt.err, "failed")
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}
