package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/evidential/pkg/types"
)

func TestHTTPServicePredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/predict", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 10, req.TopN)
		assert.Equal(t, 1, req.Batch.Size)

		json.NewEncoder(w).Encode(predictResponse{
			Starts: [][]int{{1, 3}},
			Ends:   [][]int{{1, 4}},
			Scores: [][]float64{{0.9, 0.1}},
		})
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL})
	pred, err := svc.Predict(context.Background(), &types.Batch{
		Size:       1,
		ExampleIDs: []int{7},
		DocTokens:  [][]string{{"the", "cat", "sat"}},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 3}}, pred.Starts)
	assert.Equal(t, [][]float64{{0.9, 0.1}}, pred.Scores)
}

func TestHTTPServiceScoreWithDoc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/update_with_doc", r.URL.Path)

		var req updateWithDocRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.ReturnProb, "scoring must request probabilities")

		json.NewEncoder(w).Encode(scoreWithDocResponse{
			Probs:      []float64{0.8},
			Attentions: []attentionPayload{{Score: 0.9, Doc: 2}},
		})
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL})
	probs, attentions, err := svc.ScoreWithDoc(context.Background(), &UpdateWithDocInput{
		Docs: []*types.Batch{{Size: 1, ExampleIDs: []int{0}, DocTokens: [][]string{{"a"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8}, probs)
	require.Len(t, attentions, 1)
	assert.Equal(t, Attention{Score: 0.9, Doc: 2}, attentions[0])
}

func TestHTTPServiceErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Error: "device lost"})
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL})
	_, err := svc.Predict(context.Background(), &types.Batch{Size: 1}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
	assert.Contains(t, err.Error(), "500")
}

func TestCircuitBreakerTripsAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewCircuitBreakerService(NewHTTPService(HTTPConfig{BaseURL: srv.URL}), BreakerConfig{
		MaxRequests:      1,
		Interval:         60,
		Timeout:          30,
		ReadyToTripRatio: 0.6,
	}, nil)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = svc.Predict(context.Background(), &types.Batch{Size: 1}, 1)
		require.Error(t, lastErr)
	}
	assert.Contains(t, lastErr.Error(), "circuit breaker is open")
}
