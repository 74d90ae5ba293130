package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"call-orchestrator/internal/calls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCRM struct {
	t *testing.T

	// validToken is the only bearer accepted by data endpoints.
	validToken string
	// expiredCategory is returned with 401 for any other bearer.
	expiredCategory string

	refreshStatus int
	refreshes     atomic.Int32
	dataCalls     atomic.Int32

	lastBody   map[string]any
	lastMethod string
	lastQuery  map[string][]string
	lastCT     string
}

func (f *fakeCRM) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(f.t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(f.t, "rt", r.PostForm.Get("refresh_token"))
		if f.refreshStatus != 0 {
			w.WriteHeader(f.refreshStatus)
			_, _ = w.Write([]byte(`{"status":"BAD_REFRESH_TOKEN"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rt","expires_in":1800,"token_type":"bearer"}`))
	})
	data := func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		f.lastMethod = r.Method
		f.lastQuery = r.URL.Query()
		f.lastCT = r.Header.Get("Content-Type")
		f.lastBody = nil
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &f.lastBody)
		}
		if r.Header.Get("Authorization") != "Bearer "+f.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","category":"` + f.expiredCategory + `"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == engagementsPath:
			_, _ = w.Write([]byte(`{"engagement":{"id":987654,"type":"CALL"}}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"42","properties":{"hs_lead_status":"new","phone":"+15551234567","firstname":"Ada","lastname":null}}`))
		default:
			_, _ = w.Write([]byte(`{"id":"42"}`))
		}
	}
	mux.HandleFunc("/crm/v3/objects/contacts/", data)
	mux.HandleFunc(engagementsPath, data)
	return mux
}

func newTestClient(t *testing.T, f *fakeCRM, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	tokens := NewTokenManager(srv.URL, creds, httpClient, nil)
	return NewClient(tokens, Options{BaseURL: srv.URL, HTTPClient: httpClient})
}

func fullCreds(access string) Credentials {
	return Credentials{AccessToken: access, ClientID: "cid", ClientSecret: "secret", RefreshToken: "rt"}
}

func TestSend_AttachesBearerAndJSON(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "tok"}
	c := newTestClient(t, f, fullCreds("tok"))

	resp, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.Equal(t, "application/json", f.lastCT)
	assert.Equal(t, int32(0), f.refreshes.Load())
}

func TestSend_RefreshesOnceOnExpiredToken(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "EXPIRED_AUTHENTICATION"}
	c := newTestClient(t, f, fullCreds("stale"))

	resp, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(2), f.dataCalls.Load())
	assert.Equal(t, "fresh", c.tokens.Token())
}

func TestSend_InvalidAuthenticationAlsoRefreshes(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "INVALID_AUTHENTICATION"}
	c := newTestClient(t, f, fullCreds(""))

	resp, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.Equal(t, int32(1), f.refreshes.Load())
}

func TestSend_OtherUnauthorizedIsNotRefreshed(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "MISSING_SCOPES"}
	c := newTestClient(t, f, fullCreds("stale"))

	resp, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(0), f.refreshes.Load())
}

func TestSend_SecondUnauthorizedIsReturned(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "never", expiredCategory: "EXPIRED_AUTHENTICATION"}
	c := newTestClient(t, f, fullCreds("stale"))

	resp, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.NoError(t, err)

	var se *StatusError
	require.ErrorAs(t, resp.Err(), &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(2), f.dataCalls.Load())
}

func TestSend_RefreshWithoutCredentialsIsFatal(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "EXPIRED_AUTHENTICATION"}
	c := newTestClient(t, f, Credentials{AccessToken: "stale"})

	_, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthConfig))
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(0), f.refreshes.Load())
}

func TestSend_RejectedRefreshIsFatal(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "EXPIRED_AUTHENTICATION", refreshStatus: http.StatusBadRequest}
	c := newTestClient(t, f, fullCreds("stale"))

	_, err := c.Send(context.Background(), http.MethodGet, "/crm/v3/objects/contacts/42", nil)
	require.ErrorIs(t, err, ErrAuthConfig)
	assert.Equal(t, int32(1), f.refreshes.Load())
}

func TestGetContact_RequestsLeadProperties(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "tok"}
	c := newTestClient(t, f, fullCreds("tok"))

	contact, err := c.GetContact(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", contact.ID)
	assert.Equal(t, "new", contact.Properties.LeadStatus)
	assert.Equal(t, "+15551234567", contact.Properties.Phone)
	assert.Equal(t, "Ada", contact.Properties.FirstName)
	assert.Empty(t, contact.Properties.LastName)
	assert.ElementsMatch(t, contactProperties, f.lastQuery["properties"])
}

func TestGetContact_RequiresID(t *testing.T) {
	c := NewClient(NewTokenManager("http://unused", Credentials{}, nil, nil), Options{})
	_, err := c.GetContact(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingContactID)
}

func TestUpdateContactStatus_OmitsEmptySummary(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "tok"}
	c := newTestClient(t, f, fullCreds("tok"))

	require.NoError(t, c.UpdateContactStatus(context.Background(), "42", "OPEN_DEAL", ""))
	assert.Equal(t, http.MethodPatch, f.lastMethod)
	assert.Equal(t, map[string]any{"properties": map[string]any{"hs_lead_status": "OPEN_DEAL"}}, f.lastBody)

	require.NoError(t, c.UpdateContactStatus(context.Background(), "42", "UNQUALIFIED", "Not interested."))
	assert.Equal(t, map[string]any{"properties": map[string]any{
		"hs_lead_status":  "UNQUALIFIED",
		"contact_summary": "Not interested.",
	}}, f.lastBody)
}

func TestCreateLoggedCall_BuildsEngagementAndRefreshes(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "fresh", expiredCategory: "EXPIRED_AUTHENTICATION"}
	c := newTestClient(t, f, fullCreds("stale"))

	ts := time.UnixMilli(1_700_000_000_123)
	id, err := c.CreateLoggedCall(context.Background(), calls.LoggedCall{
		ContactID: "42",
		Body:      "Lead approved for follow-up.",
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, "987654", id)
	assert.Equal(t, int32(1), f.refreshes.Load())

	eng := f.lastBody["engagement"].(map[string]any)
	assert.Equal(t, true, eng["active"])
	assert.Equal(t, "CALL", eng["type"])
	assert.Equal(t, float64(1_700_000_000_123), eng["timestamp"])

	assoc := f.lastBody["associations"].(map[string]any)
	assert.Equal(t, []any{"42"}, assoc["contactIds"])

	meta := f.lastBody["metadata"].(map[string]any)
	assert.Equal(t, "Lead approved for follow-up.", meta["body"])
	assert.Equal(t, "COMPLETED", meta["status"])
	assert.Equal(t, "", meta["fromNumber"])
	assert.Equal(t, "", meta["toNumber"])
	assert.Equal(t, float64(0), meta["durationMilliseconds"])
}

func TestCreateLoggedCall_FailureIsStatusError(t *testing.T) {
	f := &fakeCRM{t: t, validToken: "tok", expiredCategory: "MISSING_SCOPES"}
	c := newTestClient(t, f, fullCreds("other"))

	_, err := c.CreateLoggedCall(context.Background(), calls.LoggedCall{ContactID: "42", Body: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}
