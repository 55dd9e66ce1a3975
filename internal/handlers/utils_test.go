package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assaytrack/apiserver/internal/apperr"
)

func TestWriteServiceErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperr.Validation(apperr.Field("mass", "must be positive")), http.StatusBadRequest},
		{"authentication", apperr.ErrAuthentication, http.StatusUnauthorized},
		{"access denied", apperr.Denied("nope"), http.StatusForbidden},
		{"not found", apperr.NotFound("sample"), http.StatusNotFound},
		{"conflict", apperr.Conflict("report already exists for this sample"), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"upstream", apperr.ErrUpstream, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWriteServiceErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, apperr.Validation(
		apperr.Field("mass", "must be positive"),
		apperr.Field("unit", "unknown unit"),
	))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Fields, 2)
	require.Equal(t, "mass", resp.Fields[0].Field)

	// Conflict responses carry the reason without the sentinel suffix.
	rec = httptest.NewRecorder()
	writeServiceError(rec, apperr.Conflict("cannot cancel sample being analyzed or reported"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "cannot cancel sample being analyzed or reported", resp.Error)

	// Internal failures leak nothing.
	rec = httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: connection refused"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "internal error", resp.Error)
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/samples?page=3&limit=10", nil)
	page, limit, offset, err := parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, 3, page)
	require.Equal(t, 10, limit)
	require.Equal(t, 20, offset)

	r = httptest.NewRequest(http.MethodGet, "/samples", nil)
	page, limit, offset, err = parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, 1, page)
	require.Equal(t, 20, limit)
	require.Equal(t, 0, offset)

	r = httptest.NewRequest(http.MethodGet, "/samples?limit=5000", nil)
	_, limit, _, err = parsePagination(r)
	require.NoError(t, err)
	require.Equal(t, 100, limit)

	r = httptest.NewRequest(http.MethodGet, "/samples?page=0", nil)
	_, _, _, err = parsePagination(r)
	require.Error(t, err)
}
