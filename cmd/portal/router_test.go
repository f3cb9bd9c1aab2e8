package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/database/dbtest"
	"memberportal/internal/journal"
	"memberportal/internal/membership"
	"memberportal/internal/security"
	"memberportal/internal/speakers"
)

func newTestPortal(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	db := dbtest.Open(t)
	handler := newRouter(routerDeps{
		DB:       db,
		Members:  membership.NewService(membership.NewAdapter(membership.KindStandard, db), membership.KindStandard, journal.New(db), 100),
		Speakers: speakers.NewService(db),
		CSRF:     security.NewCSRF(security.NewMemoryStore()),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}
}

func TestHealthz(t *testing.T) {
	srv, client := newTestPortal(t)

	resp, err := client.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Set-Cookie"), "session cookie issued")
}

func TestRouter_CSRFProtectsWrites(t *testing.T) {
	srv, client := newTestPortal(t)

	payload, err := json.Marshal(map[string]any{
		"membership_number": "123456789",
		"first_name":        "Anna",
		"last_name":         "Schmidt",
		"email":             "anna@example.de",
		"password":          "geheim1234",
	})
	require.NoError(t, err)

	post := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/members", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(security.CSRFHeader, token)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusForbidden, post("").StatusCode)

	resp, err := client.Get(srv.URL + "/csrf-token")
	require.NoError(t, err)
	var tok map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	resp.Body.Close()
	require.NotEmpty(t, tok["csrf_token"])

	assert.Equal(t, http.StatusForbidden, post("forged").StatusCode)
	assert.Equal(t, http.StatusCreated, post(tok["csrf_token"]).StatusCode)

	resp, err = client.Get(srv.URL + "/members")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestRouter_SpeakerRoutesMounted(t *testing.T) {
	srv, client := newTestPortal(t)

	resp, err := client.Get(srv.URL + "/speakers")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
