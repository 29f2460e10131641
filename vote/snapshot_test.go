package vote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelbot/gavel/errors"
)

func TestResultPassed(t *testing.T) {
	closed := &Result{
		Closed:      true,
		Choices:     []string{"For", "Against", "Abstain"},
		Scores:      map[string]float64{"For": 120, "Against": 10, "Abstain": 5},
		ScoresTotal: 135,
	}
	assert.True(t, closed.Passed(100))
	assert.False(t, closed.Passed(200), "under quorum")

	open := &Result{
		Closed:      false,
		Choices:     []string{"For", "Against"},
		Scores:      map[string]float64{"For": 120, "Against": 10},
		ScoresTotal: 130,
	}
	assert.False(t, open.Passed(100), "open votes never pass")

	losing := &Result{
		Closed:      true,
		Choices:     []string{"For", "Against"},
		Scores:      map[string]float64{"For": 10, "Against": 120},
		ScoresTotal: 130,
	}
	assert.False(t, losing.Passed(100))

	var nilResult *Result
	assert.False(t, nilResult.Passed(0))
}

func TestSubmitProposal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jbdao.eth", req.Variables["space"])

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"proposal": map[string]any{"id": "0xabc"},
			},
		})
	}))
	defer srv.Close()

	client := NewSnapshot(srv.URL, "https://snapshot.org")
	voteID, voteURL, err := client.SubmitProposal(context.Background(), SubmitRequest{
		Space: "jbdao.eth",
		Title: "Renew payouts",
		Start: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", voteID)
	assert.Equal(t, "https://snapshot.org/#/jbdao.eth/proposal/0xabc", voteURL)
}

func TestSubmitProposalPlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "space not found"}},
		})
	}))
	defer srv.Close()

	client := NewSnapshot(srv.URL, "")
	_, _, err := client.SubmitProposal(context.Background(), SubmitRequest{Space: "nope.eth"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "space not found")
}

func TestGetResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"proposals": []map[string]any{
					{
						"id":           "0xabc",
						"state":        "closed",
						"choices":      []string{"For", "Against", "Abstain"},
						"scores":       []float64{120, 10, 5},
						"scores_total": 135,
						"votes":        31,
					},
					{
						"id":      "0xdef",
						"state":   "active",
						"choices": []string{"For", "Against"},
						"scores":  []float64{3, 1},
						"votes":   4,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewSnapshot(srv.URL, "")
	results, err := client.GetResults(context.Background(), []string{"0xabc", "0xdef", "0xmissing"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	closed := results["0xabc"]
	require.NotNil(t, closed)
	assert.True(t, closed.Closed)
	assert.InDelta(t, 120, closed.Scores["For"], 1e-9)
	assert.Equal(t, 31, closed.TotalVotes)

	assert.False(t, results["0xdef"].Closed)
	assert.Nil(t, results["0xmissing"])
}

func TestGetResultsEmptyInput(t *testing.T) {
	client := NewSnapshot("http://unreachable.invalid", "")
	results, err := client.GetResults(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSnapshot(srv.URL, "")
	_, err := client.GetResults(context.Background(), []string{"0xabc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}
