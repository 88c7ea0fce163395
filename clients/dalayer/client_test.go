package dalayer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fortytw2/leaktest"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trufnetwork/fdc-attestor/internal/httpclient"
	"github.com/trufnetwork/fdc-attestor/workflow"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "key", httpclient.New(httpclient.Options{}, nil), WithLogger(zaptest.NewLogger(t).Sugar()))
}

func TestFetchProof(t *testing.T) {
	leaf := common.HexToHash("0x01")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, proofPath, r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))

		var req proofRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint64(5), req.VotingRoundID)
		assert.Equal(t, "0xdead", req.RequestBytes)

		_ = json.NewEncoder(w).Encode(proofResponse{
			ResponseHex:     "beef",
			AttestationType: "0x576562324a736f6e000000000000000000000000000000000000000000000000",
			Proof:           []string{leaf.Hex()},
		})
	})

	rec, err := c.FetchProof(context.Background(), 5, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, rec.ResponseBytes)
	assert.Equal(t, "Web2Json", rec.AttestationKind)
	assert.Equal(t, []common.Hash{leaf}, rec.ProofPath)
}

func TestFetchProofNotReadyDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	})

	for i := 0; i < 10; i++ {
		_, err := c.FetchProof(context.Background(), 5, []byte{0x01})
		require.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
	}
	assert.Equal(t, int32(10), hits.Load())
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestFetchProofOpensBreakerOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for i := 0; i < DefaultCircuitBreakerMaxRequests; i++ {
		_, err := c.FetchProof(context.Background(), 5, []byte{0x01})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.FetchProof(context.Background(), 5, []byte{0x01})
	var transient *workflow.TransientServiceError
	require.ErrorAs(t, err, &transient)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(DefaultCircuitBreakerMaxRequests), hits.Load(), "open breaker short-circuits")
}

func TestFetchProofMalformedResponse(t *testing.T) {
	tests := map[string]proofResponse{
		"missing response": {Proof: []string{}},
		"bad hex":          {ResponseHex: "zz"},
		"short proof node": {ResponseHex: "0x01", Proof: []string{"0x01"}},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(body)
			})
			_, err := c.FetchProof(context.Background(), 1, []byte{0x01})
			assert.Equal(t, workflow.KindProtocol, workflow.KindOf(err))
		})
	}
}

func TestHealthChecker(t *testing.T) {
	defer leaktest.Check(t)()

	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, healthPath, r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := NewHealthChecker(srv.URL+"/", httpclient.New(httpclient.Options{}, nil), 10*time.Millisecond, nil)
	ok, reason := hc.Healthy()
	assert.False(t, ok)
	assert.Equal(t, "not checked yet", reason)

	hc.Start(context.Background())
	ok, reason = hc.Healthy()
	assert.False(t, ok)
	assert.Contains(t, reason, "503")

	healthy.Store(true)
	assert.Eventually(t, func() bool {
		ok, _ := hc.Healthy()
		return ok
	}, time.Second, 5*time.Millisecond)

	hc.Stop()
}
