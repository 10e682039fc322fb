package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appNegotiation "github.com/contract-hub/contract-hub/internal/application/negotiation"
	"github.com/contract-hub/contract-hub/internal/clock"
	domain "github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/events"
	"github.com/contract-hub/contract-hub/internal/infrastructure/memory"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newTestAPI(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	router := events.NewRouter(zerolog.Nop())
	t.Cleanup(router.Close)
	store := memory.NewStore(clk, "api-test", 30*time.Second, router)
	svc := appNegotiation.NewService(store, zerolog.Nop())
	ts := httptest.NewServer(NewServer(svc, router).Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func seedNegotiation(t *testing.T, store *memory.Store, state domain.State) *domain.Negotiation {
	t.Helper()
	n, err := domain.New(domain.TypeInitiator, "counter-party", "https://counter.example/api", "dataspace-protocol-http", 1_700_000_000_000)
	require.NoError(t, err)
	n.State = state
	require.NoError(t, store.Save(context.Background(), n))
	return n
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeResponse(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestQueryNegotiationsEndpoint(t *testing.T) {
	t.Run("returns all negotiations", func(t *testing.T) {
		ts, store := newTestAPI(t)
		seedNegotiation(t, store, domain.StateRequested)
		seedNegotiation(t, store, domain.StateOffered)

		resp := postJSON(t, ts.URL+"/v1/negotiations/query", map[string]any{})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Negotiations []*domain.Negotiation `json:"negotiations"`
		}
		decodeResponse(t, resp, &body)
		assert.Len(t, body.Negotiations, 2)
	})

	t.Run("filters by state name", func(t *testing.T) {
		ts, store := newTestAPI(t)
		requested := seedNegotiation(t, store, domain.StateRequested)
		seedNegotiation(t, store, domain.StateOffered)

		resp := postJSON(t, ts.URL+"/v1/negotiations/query", map[string]any{
			"filter": []map[string]any{
				{"operandLeft": "state", "operator": "=", "operandRight": "REQUESTED"},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Negotiations []*domain.Negotiation `json:"negotiations"`
		}
		decodeResponse(t, resp, &body)
		require.Len(t, body.Negotiations, 1)
		assert.Equal(t, requested.ID, body.Negotiations[0].ID)
	})

	t.Run("empty result encodes as empty list", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp := postJSON(t, ts.URL+"/v1/negotiations/query", map[string]any{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"negotiations":[]`)
	})

	t.Run("rejects unknown filter path", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp := postJSON(t, ts.URL+"/v1/negotiations/query", map[string]any{
			"filter": []map[string]any{
				{"operandLeft": "secretField", "operator": "=", "operandRight": "x"},
			},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "INVALID_QUERY", body.Error)
	})

	t.Run("rejects unknown state name", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp := postJSON(t, ts.URL+"/v1/negotiations/query", map[string]any{
			"filter": []map[string]any{
				{"operandLeft": "state", "operator": "=", "operandRight": "NEGOTIATING"},
			},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "INVALID_QUERY", body.Error)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp, err := http.Post(ts.URL+"/v1/negotiations/query", "application/json", bytes.NewReader([]byte(`{"bogus": 1}`)))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "INVALID_BODY", body.Error)
	})
}

func TestGetNegotiationEndpoint(t *testing.T) {
	t.Run("returns the negotiation", func(t *testing.T) {
		ts, store := newTestAPI(t)
		n := seedNegotiation(t, store, domain.StateRequested)

		resp, err := http.Get(ts.URL + "/v1/negotiations/" + n.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got domain.Negotiation
		decodeResponse(t, resp, &got)
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, domain.StateRequested, got.State)
		assert.Equal(t, domain.TypeInitiator, got.Type)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp, err := http.Get(ts.URL + "/v1/negotiations/missing")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "NOT_FOUND", body.Error)
	})
}

func TestNegotiationStateEndpoint(t *testing.T) {
	t.Run("reports name and code", func(t *testing.T) {
		ts, store := newTestAPI(t)
		n := seedNegotiation(t, store, domain.StateFinalized)

		resp, err := http.Get(ts.URL + "/v1/negotiations/" + n.ID + "/state")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			State string `json:"state"`
			Code  int32  `json:"code"`
		}
		decodeResponse(t, resp, &body)
		assert.Equal(t, "FINALIZED", body.State)
		assert.Equal(t, int32(1200), body.Code)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp, err := http.Get(ts.URL + "/v1/negotiations/missing/state")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeleteNegotiationEndpoint(t *testing.T) {
	t.Run("removes the negotiation", func(t *testing.T) {
		ts, store := newTestAPI(t)
		n := seedNegotiation(t, store, domain.StateTerminated)

		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/negotiations/"+n.ID, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		check, err := http.Get(ts.URL + "/v1/negotiations/" + n.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, check.StatusCode)
	})

	t.Run("negotiation with agreement is a conflict", func(t *testing.T) {
		ts, store := newTestAPI(t)
		n := seedNegotiation(t, store, domain.StateFinalized)
		a, err := domain.NewAgreement("agreement-1", "provider-1", "consumer-1", "asset-1", 1_700_000_000, json.RawMessage(`{"permissions":[]}`))
		require.NoError(t, err)
		require.NoError(t, n.SetAgreement(a))
		require.NoError(t, store.Save(context.Background(), n))

		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/negotiations/"+n.ID, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "CONFLICT", body.Error)
	})
}

func TestAgreementEndpoints(t *testing.T) {
	seedAgreement := func(t *testing.T, store *memory.Store) *domain.Agreement {
		t.Helper()
		n := seedNegotiation(t, store, domain.StateFinalized)
		a, err := domain.NewAgreement("agreement-1", "provider-1", "consumer-1", "asset-1", 1_700_000_000, json.RawMessage(`{"permissions":[]}`))
		require.NoError(t, err)
		require.NoError(t, n.SetAgreement(a))
		require.NoError(t, store.Save(context.Background(), n))
		return a
	}

	t.Run("query returns stored agreements", func(t *testing.T) {
		ts, store := newTestAPI(t)
		a := seedAgreement(t, store)

		resp := postJSON(t, ts.URL+"/v1/agreements/query", map[string]any{
			"filter": []map[string]any{
				{"operandLeft": "assetId", "operator": "=", "operandRight": "asset-1"},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Agreements []*domain.Agreement `json:"agreements"`
		}
		decodeResponse(t, resp, &body)
		require.Len(t, body.Agreements, 1)
		assert.Equal(t, a.ID, body.Agreements[0].ID)
	})

	t.Run("get by id", func(t *testing.T) {
		ts, store := newTestAPI(t)
		a := seedAgreement(t, store)

		resp, err := http.Get(ts.URL + "/v1/agreements/" + a.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got domain.Agreement
		decodeResponse(t, resp, &got)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, "asset-1", got.AssetID)
	})

	t.Run("unknown agreement is not found", func(t *testing.T) {
		ts, _ := newTestAPI(t)

		resp, err := http.Get(ts.URL + "/v1/agreements/missing")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body errorResponse
		decodeResponse(t, resp, &body)
		assert.Equal(t, "NOT_FOUND", body.Error)
	})
}

func TestEventStreamEndpoint(t *testing.T) {
	ts, store := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/v1/events?type=" + events.TypeNegotiationCreated)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	envCh := make(chan events.Envelope, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				var e events.Envelope
				if err := json.Unmarshal([]byte(payload), &e); err == nil {
					envCh <- e
					return
				}
			}
		}
	}()

	// Headers are flushed only after the handler subscribes, so once Get
	// has returned the save below is observed.
	n := seedNegotiation(t, store, domain.StateRequested)

	select {
	case e := <-envCh:
		assert.Equal(t, events.TypeNegotiationCreated, e.Type)
		assert.Contains(t, string(e.Payload), n.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
