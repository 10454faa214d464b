package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("run 4: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("biotrack: %w", ErrConflict), http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("db password leaked"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
		require.NotContains(t, body.Detail, "password")
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Vendor string `json:"vendor"`
	}
	var b body
	require.NoError(t, DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"vendor":"biotrack"}`)), &b))
	require.Equal(t, "biotrack", b.Vendor)

	require.ErrorIs(t, DecodeJSON(httptest.NewRequest(http.MethodPost, "/", nil), &b), io.EOF)
	require.Error(t, DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"vendor":"x","extra":1}`)), &b))
	require.Error(t, DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"vendor":"x"} {}`)), &b))
}

func TestJSONAndProblemHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusAccepted, map[string]string{"task_id": "t-1"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	Problem(rr, http.StatusTeapot, "", "")
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, "I'm a teapot", p.Title)
	require.Equal(t, "about:blank", p.Type)
}
