package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gavelbot/gavel/errors"
)

// Store persists proposals in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const proposalColumns = `hash, space, proposal_id, title, body, status,
	governance_cycle, author, discussion_thread_url, vote_url,
	temperature_check_yes, temperature_check_no, vote_results,
	created_at, updated_at`

// Get returns a single proposal by hash.
func (s *Store) Get(ctx context.Context, hash string) (*Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals WHERE hash = ?`, hash)

	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("proposal %q not found", hash)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying proposal")
	}
	return p, nil
}

// GetByStatus returns all proposals in a space with the given status,
// ordered by creation time. Handlers use this as their guard input.
func (s *Store) GetByStatus(ctx context.Context, space string, status Status) ([]*Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals WHERE space = ? AND status = ?
		ORDER BY created_at, hash`, space, status)
	if err != nil {
		return nil, errors.Wrap(err, "querying proposals by status")
	}
	defer rows.Close()
	return collectProposals(rows)
}

// GetByCycle returns all proposals in a space for one governance cycle.
func (s *Store) GetByCycle(ctx context.Context, space string, cycle int) ([]*Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals WHERE space = ? AND governance_cycle = ?
		ORDER BY created_at, hash`, space, cycle)
	if err != nil {
		return nil, errors.Wrap(err, "querying proposals by cycle")
	}
	defer rows.Close()
	return collectProposals(rows)
}

// ListBySpace returns a space's proposals, most recent first.
func (s *Store) ListBySpace(ctx context.Context, space string, limit int) ([]*Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals WHERE space = ?
		ORDER BY created_at DESC, hash LIMIT ?`, space, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing proposals")
	}
	defer rows.Close()
	return collectProposals(rows)
}

// Put inserts or replaces a proposal.
func (s *Store) Put(ctx context.Context, p *Proposal) error {
	var results any
	if p.VoteResults != nil {
		encoded, err := json.Marshal(p.VoteResults)
		if err != nil {
			return errors.Wrap(err, "encoding vote results")
		}
		results = string(encoded)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (
			hash, space, proposal_id, title, body, status,
			governance_cycle, author, discussion_thread_url, vote_url,
			temperature_check_yes, temperature_check_no, vote_results,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			proposal_id = excluded.proposal_id,
			title = excluded.title,
			body = excluded.body,
			status = excluded.status,
			governance_cycle = excluded.governance_cycle,
			author = excluded.author,
			discussion_thread_url = excluded.discussion_thread_url,
			vote_url = excluded.vote_url,
			temperature_check_yes = excluded.temperature_check_yes,
			temperature_check_no = excluded.temperature_check_no,
			vote_results = excluded.vote_results,
			updated_at = excluded.updated_at`,
		p.Hash, p.Space, p.ProposalID, p.Title, p.Body, string(p.Status),
		p.GovernanceCycle, p.Author, p.DiscussionThreadURL, p.VoteURL,
		p.TemperatureCheckYes, p.TemperatureCheckNo, results,
		now, now)
	if err != nil {
		return errors.Wrap(err, "upserting proposal")
	}
	return nil
}

// UpdateStatuses moves a batch of proposals to new statuses in one
// transaction. Every move is validated against the transition table;
// an illegal move rolls back the whole batch.
func (s *Store) UpdateStatuses(ctx context.Context, moves map[string]Status) error {
	if len(moves) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning status update")
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for hash, to := range moves {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM proposals WHERE hash = ?`, hash).Scan(&raw)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("proposal %q not found", hash)
		}
		if err != nil {
			return errors.Wrap(err, "reading current status")
		}
		from, err := ParseStatus(raw)
		if err != nil {
			return err
		}
		if _, err := Transition(from, to); err != nil {
			return errors.Wrapf(err, "proposal %s", hash)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = ?, updated_at = ?
			WHERE hash = ?`, string(to), now, hash); err != nil {
			return errors.Wrap(err, "updating status")
		}
	}
	return errors.Wrap(tx.Commit(), "committing status update")
}

// SetTemperatureCheckTally records the reaction counts gathered when a
// temperature check closes.
func (s *Store) SetTemperatureCheckTally(ctx context.Context, hash string, yes, no int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET temperature_check_yes = ?, temperature_check_no = ?, updated_at = ?
		WHERE hash = ?`,
		yes, no, time.Now().UTC().Format(time.RFC3339), hash)
	if err != nil {
		return errors.Wrap(err, "recording temperature check tally")
	}
	return nil
}

// SetVoteURL records the external vote URL after voteSetup submits a
// proposal to the vote platform. A non-empty vote_url is the "already
// submitted" guard for voteSetup redelivery; the vote id is the URL's
// final segment.
func (s *Store) SetVoteURL(ctx context.Context, hash, voteURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET vote_url = ?, updated_at = ?
		WHERE hash = ?`,
		voteURL, time.Now().UTC().Format(time.RFC3339), hash)
	if err != nil {
		return errors.Wrap(err, "recording vote url")
	}
	return nil
}

// SetVoteResults stores the final tally for a closed vote.
func (s *Store) SetVoteResults(ctx context.Context, hash string, results *VoteResults) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return errors.Wrap(err, "encoding vote results")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE proposals SET vote_results = ?, updated_at = ?
		WHERE hash = ?`,
		string(encoded), time.Now().UTC().Format(time.RFC3339), hash)
	if err != nil {
		return errors.Wrap(err, "recording vote results")
	}
	return nil
}

func collectProposals(rows *sql.Rows) ([]*Proposal, error) {
	var proposals []*Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning proposal row")
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var p Proposal
	var status string
	var results sql.NullString
	var created, updated string

	err := row.Scan(
		&p.Hash, &p.Space, &p.ProposalID, &p.Title, &p.Body, &status,
		&p.GovernanceCycle, &p.Author, &p.DiscussionThreadURL, &p.VoteURL,
		&p.TemperatureCheckYes, &p.TemperatureCheckNo, &results,
		&created, &updated)
	if err != nil {
		return nil, err
	}

	if p.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if results.Valid && results.String != "" {
		p.VoteResults = &VoteResults{}
		if err := json.Unmarshal([]byte(results.String), p.VoteResults); err != nil {
			return nil, errors.Wrap(err, "decoding vote results")
		}
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, errors.Wrap(err, "parsing created_at")
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, errors.Wrap(err, "parsing updated_at")
	}
	return &p, nil
}
