package vote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gavelbot/gavel/errors"
)

// DefaultHubURL is the public Snapshot GraphQL hub.
const DefaultHubURL = "https://hub.snapshot.org/graphql"

const requestTimeout = 30 * time.Second

// Snapshot implements Client against a Snapshot-compatible GraphQL hub.
type Snapshot struct {
	hubURL  string
	baseURL string // public vote page base, e.g. "https://snapshot.org"
	client  *http.Client
}

// NewSnapshot creates a Snapshot client. Empty hubURL or baseURL fall
// back to the public endpoints.
func NewSnapshot(hubURL, baseURL string) *Snapshot {
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	if baseURL == "" {
		baseURL = "https://snapshot.org"
	}
	return &Snapshot{
		hubURL:  hubURL,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// SubmitProposal creates a proposal on the hub.
func (s *Snapshot) SubmitProposal(ctx context.Context, req SubmitRequest) (string, string, error) {
	choices := req.Choices
	if len(choices) == 0 {
		choices = []string{"For", "Against", "Abstain"}
	}

	var resp struct {
		Data struct {
			Proposal struct {
				ID string `json:"id"`
			} `json:"proposal"`
		} `json:"data"`
		Errors []graphqlError `json:"errors"`
	}

	err := s.do(ctx, graphqlRequest{
		Query: `mutation CreateProposal($space: String!, $title: String!, $body: String!,
			$choices: [String!]!, $start: Int!, $end: Int!, $snapshot: String) {
			proposal(space: $space, title: $title, body: $body, choices: $choices,
				start: $start, end: $end, snapshot: $snapshot) { id }
		}`,
		Variables: map[string]any{
			"space":    req.Space,
			"title":    req.Title,
			"body":     req.Body,
			"choices":  choices,
			"start":    req.Start.Unix(),
			"end":      req.End.Unix(),
			"snapshot": req.Snapshot,
		},
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if len(resp.Errors) > 0 {
		return "", "", errors.Newf("vote platform rejected proposal: %s", resp.Errors[0].Message)
	}

	voteID := resp.Data.Proposal.ID
	if voteID == "" {
		return "", "", errors.New("vote platform returned no proposal id")
	}
	voteURL := fmt.Sprintf("%s/#/%s/proposal/%s", s.baseURL, req.Space, voteID)
	return voteID, voteURL, nil
}

// GetResults fetches proposal states and tallies in one query.
func (s *Snapshot) GetResults(ctx context.Context, voteIDs []string) (map[string]*Result, error) {
	if len(voteIDs) == 0 {
		return map[string]*Result{}, nil
	}

	var resp struct {
		Data struct {
			Proposals []struct {
				ID          string    `json:"id"`
				State       string    `json:"state"`
				Choices     []string  `json:"choices"`
				Scores      []float64 `json:"scores"`
				ScoresTotal float64   `json:"scores_total"`
				Votes       int       `json:"votes"`
			} `json:"proposals"`
		} `json:"data"`
		Errors []graphqlError `json:"errors"`
	}

	err := s.do(ctx, graphqlRequest{
		Query: `query Proposals($ids: [String!]!) {
			proposals(where: { id_in: $ids }) {
				id state choices scores scores_total votes
			}
		}`,
		Variables: map[string]any{"ids": voteIDs},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, errors.Newf("vote platform query failed: %s", resp.Errors[0].Message)
	}

	results := make(map[string]*Result, len(resp.Data.Proposals))
	for _, p := range resp.Data.Proposals {
		scores := make(map[string]float64, len(p.Choices))
		for i, choice := range p.Choices {
			if i < len(p.Scores) {
				scores[choice] = p.Scores[i]
			}
		}
		results[p.ID] = &Result{
			VoteID:      p.ID,
			Closed:      strings.EqualFold(p.State, "closed"),
			Choices:     p.Choices,
			Scores:      scores,
			TotalVotes:  p.Votes,
			ScoresTotal: p.ScoresTotal,
		}
	}
	return results, nil
}

func (s *Snapshot) do(ctx context.Context, gql graphqlRequest, out any) error {
	body, err := json.Marshal(gql)
	if err != nil {
		return errors.Wrap(err, "encoding vote platform request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hubURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building vote platform request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(errors.ErrServiceUnavailable,
			"vote platform returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding vote platform response")
	}
	return nil
}
