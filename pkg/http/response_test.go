package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "studyreg/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"capacity", apperrors.CapacityExceeded("s1", 2, 2), http.StatusConflict, apperrors.CodeCapacityExceeded},
		{"validation", apperrors.Validation("bad", map[string]any{"age": "too young"}), http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"wrapped", errors.Join(errors.New("ctx"), apperrors.NotFound("Collector")), http.StatusNotFound, apperrors.CodeNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteError(rec, tt.err))

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Error, "boom")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"nope":1}`, true},
		{"trailing object", `{"name":"x"}{"name":"y"}`, true},
		{"malformed", `{"name":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(r, &p)
			if tt.wantErr {
				assert.True(t, apperrors.IsAppError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", p.Name)
		})
	}
}
