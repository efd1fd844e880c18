package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luchaneitor/tecnoacceso-web/internal/records"
)

func TestAppendActivity(t *testing.T) {
	var gotAuth string
	var gotBody records.Activity
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/activities", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "42"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	id, err := c.AppendActivity(context.Background(), records.Activity{
		ID:         "local-1",
		Operator:   "juan",
		Dependency: "itsa",
		Action:     "RAISE ELEVATOR",
		Command:    "A",
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "42", id)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "juan", gotBody.Operator)
	require.Equal(t, "A", gotBody.Command)
}

func TestAppendFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "disk full"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.AppendLog(context.Background(), records.Log{Action: "x", Category: records.CategorySystem, Outcome: records.OutcomeSuccess})
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "appendLog", ue.Op)
}

func TestServerDownIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.ListActivity(context.Background())
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "listActivity", ue.Op)
}

func TestAppendAlertValidatesMessage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.AppendAlert(context.Background(), records.Alert{Message: "  ", Kind: records.AlertInfo})
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.False(t, called)
}

func TestListUnreadAlerts(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/alerts", r.URL.Path)
		json.NewEncoder(w).Encode([]records.Alert{
			{ID: "1", Message: "emergency stop", Kind: records.AlertEmergency, Priority: records.PriorityHigh, Timestamp: now},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	alerts, err := c.ListUnreadAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, records.AlertEmergency, alerts[0].Kind)
	require.Equal(t, now.UnixMilli(), alerts[0].Timestamp.UnixMilli())
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/login", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["username"] != "juan" || creds["password"] != "12345" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt-token",
			"operator": map[string]string{
				"id": "2", "username": "juan", "displayName": "Juan Pérez",
				"role": "operator", "dependency": "itsa",
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	res, err := c.Login(context.Background(), "juan", "12345")
	require.NoError(t, err)
	require.Equal(t, "jwt-token", res.Token)
	require.Equal(t, "operator", res.Operator.Role)

	_, err = c.Login(context.Background(), "juan", "wrong")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrEmptyMessage))
}
