package autodl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	apperrors "storyboard-ai/pkg/errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, reply func(path string) (int, powerResponse)) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		var body powerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, r.URL.Path+" "+body.InstanceUuid)

		status, resp := reply(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestStartStop(t *testing.T) {
	srv, calls := newServer(t, func(string) (int, powerResponse) {
		return http.StatusOK, powerResponse{Code: StatusSuccess}
	})
	c := NewClient(srv.URL, "tok")

	code, err := c.Start(context.Background(), "pro-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, code)

	code, err = c.Stop(context.Background(), "pro-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, code)

	assert.Equal(t, []string{"/instance/pro/power_on pro-1", "/instance/pro/power_off pro-1"}, *calls)
}

func TestStartRejectedByProvider(t *testing.T) {
	srv, _ := newServer(t, func(string) (int, powerResponse) {
		return http.StatusOK, powerResponse{Code: "InsufficientBalance", Msg: "余额不足"}
	})

	code, err := NewClient(srv.URL, "tok").Start(context.Background(), "pro-1")
	require.Error(t, err)
	assert.Equal(t, "InsufficientBalance", code)
	assert.True(t, apperrors.Is(err, apperrors.CodeInstanceLifecycle))
	assert.Contains(t, err.Error(), "余额不足")
}

func TestStopHTTPError(t *testing.T) {
	srv, _ := newServer(t, func(string) (int, powerResponse) {
		return http.StatusBadGateway, powerResponse{}
	})

	_, err := NewClient(srv.URL, "tok").Stop(context.Background(), "pro-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}
