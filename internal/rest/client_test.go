package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/observatory/errs"
)

func TestStatusNormalisesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/evolution/status", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"adaptive_improvements": [{"id":"a","fitness":0.4,"complexity":2,"species":"sp"}],
			"current_generation": 11,
			"performance_metrics": {"avg_fitness": 0.44}
		}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, time.Second).Status(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 11, snap.Generation)
	require.Equal(t, 0.44, snap.AvgFitness)
	require.Len(t, snap.Strategies, 1)
}

func TestStatusFailureIsFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Status(context.Background())
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CodeFeedUnavailable, envelope.Code)
}

func TestStatusUnparseableBodyIsFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Status(context.Background())
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CodeFeedUnavailable, envelope.Code)
}

func TestTriggerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/evolution/trigger", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"triggered","generation":8,"expected_duration":"30s"}`))
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL, time.Second).Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, "triggered", result.Status)
	require.EqualValues(t, 8, result.Generation)
}

func TestTriggerHTTPFailureIsActionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Trigger(context.Background())
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CodeAction, envelope.Code)
	require.Equal(t, http.StatusInternalServerError, envelope.HTTP)
}

func TestTriggerRefusedStatusIsActionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"already_running"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Trigger(context.Background())
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CodeAction, envelope.Code)
}

func TestResetSuccessAndRefusal(t *testing.T) {
	reply := `{"status":"reset_complete","message":"wiped"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/evolution/reset", r.URL.Path)
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	result, err := client.Reset(context.Background())
	require.NoError(t, err)
	require.Equal(t, "wiped", result.Message)

	reply = `{"status":"busy"}`
	_, err = client.Reset(context.Background())
	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, errs.CodeAction, envelope.Code)
}

func TestActionRateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"triggered"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	// Exhaust the burst, then expect the limiter to block until the context
	// gives up.
	for i := 0; i < 2; i++ {
		_, err := client.Trigger(context.Background())
		require.NoError(t, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Trigger(ctx)
	require.Error(t, err)
	var envelope *errs.E
	require.True(t, errors.As(err, &envelope))
	require.Equal(t, errs.CodeAction, envelope.Code)
}
