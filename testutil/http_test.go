/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireErrorInRecorder(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		code        int
		body        string
		wantFailed  bool
	}{
		{
			name:        "matches",
			contentType: contentTypeAppJSON,
			code:        http.StatusServiceUnavailable,
			body:        `{"error":{"domain":"aithrottle","code":"limiterStopped"}}`,
		},
		{
			name:        "wrong status",
			contentType: contentTypeAppJSON,
			code:        http.StatusInternalServerError,
			body:        `{"error":{"domain":"aithrottle","code":"limiterStopped"}}`,
			wantFailed:  true,
		},
		{
			name:        "wrong content type",
			contentType: "text/plain",
			code:        http.StatusServiceUnavailable,
			body:        `{"error":{"domain":"aithrottle","code":"limiterStopped"}}`,
			wantFailed:  true,
		},
		{
			name:        "wrong code",
			contentType: contentTypeAppJSON,
			code:        http.StatusServiceUnavailable,
			body:        `{"error":{"domain":"aithrottle","code":"internalError"}}`,
			wantFailed:  true,
		},
		{
			name:        "not wrapped",
			contentType: contentTypeAppJSON,
			code:        http.StatusServiceUnavailable,
			body:        `{"domain":"aithrottle","code":"limiterStopped"}`,
			wantFailed:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.Header().Set("Content-Type", tt.contentType)
			rec.WriteHeader(tt.code)
			_, _ = rec.Write([]byte(tt.body))
			mockT := &MockT{}
			RequireErrorInRecorder(mockT, rec, http.StatusServiceUnavailable, "aithrottle", "limiterStopped")
			require.Equal(t, tt.wantFailed, mockT.Failed)
		})
	}
}

func TestRequireJSONInRecorder(t *testing.T) {
	type status struct {
		QueueLength int `json:"queueLength"`
	}

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentTypeAppJSON)
	_, _ = rec.Write([]byte(`{"queueLength":3}`))
	mockT := &MockT{}
	RequireJSONInRecorder(mockT, rec, &status{QueueLength: 3}, &status{})
	require.False(t, mockT.Failed)

	rec = httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentTypeAppJSON)
	_, _ = rec.Write([]byte(`{"queueLength":4}`))
	mockT = &MockT{}
	RequireJSONInRecorder(mockT, rec, &status{QueueLength: 3}, &status{})
	require.True(t, mockT.Failed)
}
