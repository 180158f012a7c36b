package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  string
	}{
		{name: "ok", query: "?state=s1&code=abc", wantCode: "abc"},
		{name: "wrong state", query: "?state=nope&code=abc", wantErr: "invalid state"},
		{name: "denied", query: "?state=s1&error=access_denied", wantErr: "auth error: access_denied"},
		{name: "no code", query: "?state=s1", wantErr: "missing code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := make(chan string, 1)
			errs := make(chan error, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", codes, errs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			if tt.wantErr != "" {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				require.Len(t, errs, 1)
				assert.EqualError(t, <-errs, tt.wantErr)
				return
			}
			assert.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, codes, 1)
			assert.Equal(t, tt.wantCode, <-codes)
		})
	}
}

func TestCallbackHandlerNeverBlocks(t *testing.T) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)
	h := callbackHandler("s1", codes, errs)
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=x", nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=bad", nil))
	}
	assert.Len(t, codes, 1)
	assert.Len(t, errs, 1)
}

func TestAuthorizeTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	conf := &oauth2.Config{ClientID: "id", RedirectURL: "http://" + ln.Addr().String() + "/callback"}
	var out bytes.Buffer
	err = authorize(context.Background(), conf, ln, 20*time.Millisecond, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, out.String(), "Open this URL")
}
