package space

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gavelbot/gavel/errors"
)

// Store persists space configuration and dialog-message bookkeeping
// in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const spaceColumns = `name, display_name, auto_enable, cycle_trigger_time,
	cycle_stage_lengths, cycle_anchor, current_cycle, last_cycle_trigger,
	chat_channel, operator_channel, alert_role,
	min_yes_votes, yes_no_ratio, vote_space, vote_quorum,
	created_at, updated_at`

// Get returns the configuration for a single space.
func (s *Store) Get(ctx context.Context, name string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+spaceColumns+`
		FROM spaces WHERE name = ?`, name)

	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("space %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying space")
	}
	return cfg, nil
}

// ListAutoEnabled returns every space with automation enabled, in name
// order. The daily scheduler iterates this set.
func (s *Store) ListAutoEnabled(ctx context.Context) ([]*Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+spaceColumns+`
		FROM spaces WHERE auto_enable = 1 ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "querying auto-enabled spaces")
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning space row")
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Put inserts or fully replaces a space configuration. Cycle state
// columns are preserved on replace.
func (s *Store) Put(ctx context.Context, cfg *Config) error {
	lengths, err := json.Marshal(cfg.CycleStageLengths)
	if err != nil {
		return errors.Wrap(err, "encoding stage lengths")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spaces (
			name, display_name, auto_enable, cycle_trigger_time,
			cycle_stage_lengths, cycle_anchor, current_cycle,
			chat_channel, operator_channel, alert_role,
			min_yes_votes, yes_no_ratio, vote_space, vote_quorum,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			auto_enable = excluded.auto_enable,
			cycle_trigger_time = excluded.cycle_trigger_time,
			cycle_stage_lengths = excluded.cycle_stage_lengths,
			cycle_anchor = excluded.cycle_anchor,
			chat_channel = excluded.chat_channel,
			operator_channel = excluded.operator_channel,
			alert_role = excluded.alert_role,
			min_yes_votes = excluded.min_yes_votes,
			yes_no_ratio = excluded.yes_no_ratio,
			vote_space = excluded.vote_space,
			vote_quorum = excluded.vote_quorum,
			updated_at = excluded.updated_at`,
		cfg.Name, cfg.DisplayName, cfg.AutoEnable, cfg.CycleTriggerTime,
		string(lengths), cfg.CycleAnchor.UTC().Format(time.RFC3339),
		cfg.CurrentCycle,
		cfg.ChatChannel, cfg.OperatorChannel, cfg.AlertRole,
		cfg.Poll.MinYesVotes, cfg.Poll.YesNoRatio, cfg.VoteSpace, cfg.VoteQuorum,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return errors.Wrap(err, "upserting space")
	}
	return nil
}

// IncrementCycle advances the space's governance cycle counter for the
// given cycle-start trigger. It returns the cycle number after the
// call and whether this call performed the increment. Redelivery of
// the same trigger is a no-op, so the counter moves at most once per
// cycle boundary.
func (s *Store) IncrementCycle(ctx context.Context, name string, trigger time.Time) (int, bool, error) {
	triggerStr := trigger.UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE spaces
		SET current_cycle = current_cycle + 1,
			last_cycle_trigger = ?,
			updated_at = ?
		WHERE name = ?
		AND (last_cycle_trigger IS NULL OR last_cycle_trigger < ?)`,
		triggerStr, time.Now().UTC().Format(time.RFC3339), name, triggerStr)
	if err != nil {
		return 0, false, errors.Wrap(err, "incrementing governance cycle")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, errors.Wrap(err, "checking increment result")
	}

	var cycle int
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT current_cycle, 1 FROM spaces WHERE name = ?`, name).
		Scan(&cycle, &exists)
	if err == sql.ErrNoRows {
		return 0, false, errors.NewNotFoundError("space %q not found", name)
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "reading cycle counter")
	}
	return cycle, n > 0, nil
}

// DialogMessageID returns the stored chat message id for a slot, or
// empty string when nothing is recorded.
func (s *Store) DialogMessageID(ctx context.Context, name string, slot Slot) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id FROM dialog_messages
		WHERE space = ? AND slot = ?`, name, slot).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "querying dialog message")
	}
	return id, nil
}

// SetDialogMessageID records the chat message id for a slot,
// replacing any previous value.
func (s *Store) SetDialogMessageID(ctx context.Context, name string, slot Slot, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dialog_messages (space, slot, message_id)
		VALUES (?, ?, ?)
		ON CONFLICT(space, slot) DO UPDATE SET message_id = excluded.message_id`,
		name, slot, messageID)
	if err != nil {
		return errors.Wrap(err, "storing dialog message")
	}
	return nil
}

// ClearDialogMessageID removes the stored message id for a slot. Used
// after the corresponding chat message is deleted.
func (s *Store) ClearDialogMessageID(ctx context.Context, name string, slot Slot) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM dialog_messages WHERE space = ? AND slot = ?`, name, slot)
	if err != nil {
		return errors.Wrap(err, "clearing dialog message")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var cfg Config
	var lengths string
	var anchor, created, updated string
	var lastTrigger sql.NullString

	err := row.Scan(
		&cfg.Name, &cfg.DisplayName, &cfg.AutoEnable, &cfg.CycleTriggerTime,
		&lengths, &anchor, &cfg.CurrentCycle, &lastTrigger,
		&cfg.ChatChannel, &cfg.OperatorChannel, &cfg.AlertRole,
		&cfg.Poll.MinYesVotes, &cfg.Poll.YesNoRatio, &cfg.VoteSpace, &cfg.VoteQuorum,
		&created, &updated)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lengths), &cfg.CycleStageLengths); err != nil {
		return nil, errors.Wrap(err, "decoding stage lengths")
	}
	if cfg.CycleAnchor, err = time.Parse(time.RFC3339, anchor); err != nil {
		return nil, errors.Wrap(err, "parsing cycle anchor")
	}
	if lastTrigger.Valid {
		t, err := time.Parse(time.RFC3339, lastTrigger.String)
		if err != nil {
			return nil, errors.Wrap(err, "parsing last cycle trigger")
		}
		cfg.LastCycleTrigger = &t
	}
	if cfg.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, errors.Wrap(err, "parsing created_at")
	}
	if cfg.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, errors.Wrap(err, "parsing updated_at")
	}
	return &cfg, nil
}
