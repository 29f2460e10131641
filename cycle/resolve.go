package cycle

import (
	"fmt"
	"time"

	"github.com/gavelbot/gavel/errors"
)

// lookaheadCycles bounds resolution to the current and next cycle.
const lookaheadCycles = 2

// NextTrigger returns the next daily trigger instant at or after now.
// triggerTime is "HH:MM" in UTC. If now is already past today's trigger,
// the trigger rolls to the following day. This is the only
// time-zone-sensitive computation in the system and is UTC-exact so a
// trigger never fires twice for the same day.
func NextTrigger(now time.Time, triggerTime string) (time.Time, error) {
	var hours, minutes int
	if _, err := fmt.Sscanf(triggerTime, "%d:%d", &hours, &minutes); err != nil {
		return time.Time{}, errors.NewConfigError("malformed trigger time %q (want HH:MM)", triggerTime)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return time.Time{}, errors.NewConfigError("trigger time %q out of range", triggerTime)
	}

	now = now.UTC()
	trigger := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, time.UTC)
	if !trigger.After(now) {
		trigger = trigger.AddDate(0, 0, 1)
	}
	return trigger, nil
}

// Resolve turns a repeating stage template into the ordered stage windows
// of the current and next governance cycle. template lists stage titles in
// cycle order; stageDays gives each stage's length in days. Windows are
// anchored to the space's cadence: the current cycle start is derived from
// anchor (the instant the first cycle started, at the trigger time of
// day), so resolving on any day of a cycle yields the same windows and
// re-scheduling collapses onto the same deterministic job ids.
//
// Resolve is pure: no side effects, deterministic for a given now.
// A malformed template is a configuration error surfaced to the caller.
func Resolve(template []string, stageDays []int, anchor, now time.Time) ([]StageWindow, error) {
	if len(template) == 0 {
		return nil, errors.NewConfigError("empty stage template")
	}
	if len(stageDays) != len(template) {
		return nil, errors.NewConfigError("stage lengths count %d does not match template stages %d", len(stageDays), len(template))
	}
	if anchor.IsZero() {
		return nil, errors.NewConfigError("cycle anchor is not set")
	}

	titles := make([]StageTitle, len(template))
	cycleDays := 0
	for i, s := range template {
		title, err := ParseStageTitle(s)
		if err != nil {
			return nil, err
		}
		if stageDays[i] <= 0 {
			return nil, errors.NewConfigError("stage %q has non-positive length %d", s, stageDays[i])
		}
		titles[i] = title
		cycleDays += stageDays[i]
	}

	now = now.UTC()
	anchor = anchor.UTC()
	cursor := anchor
	if now.After(anchor) {
		elapsedDays := int(now.Sub(anchor).Hours() / 24)
		cursor = anchor.AddDate(0, 0, (elapsedDays/cycleDays)*cycleDays)
	}

	windows := make([]StageWindow, 0, lookaheadCycles*len(titles))
	for c := 0; c < lookaheadCycles; c++ {
		for i, title := range titles {
			end := cursor.AddDate(0, 0, stageDays[i])
			windows = append(windows, StageWindow{Title: title, Start: cursor, End: end})
			cursor = end
		}
	}
	return windows, nil
}

// Position reports where now falls within a space's cadence anchored at
// anchor (the instant its first cycle started, at the trigger time of
// day). Returns the 1-based day of the cycle and the stage window
// containing now. Used by the daily alert.
func Position(anchor time.Time, template []string, stageDays []int, now time.Time) (dayOfCycle int, current StageWindow, err error) {
	if len(stageDays) != len(template) || len(template) == 0 {
		return 0, StageWindow{}, errors.NewConfigError("stage lengths count %d does not match template stages %d", len(stageDays), len(template))
	}

	cycleDays := 0
	for i, d := range stageDays {
		if d <= 0 {
			return 0, StageWindow{}, errors.NewConfigError("stage %q has non-positive length %d", template[i], d)
		}
		cycleDays += d
	}

	now = now.UTC()
	anchor = anchor.UTC()
	if now.Before(anchor) {
		return 0, StageWindow{}, errors.NewConfigError("now %s precedes cycle anchor %s", now.Format(time.RFC3339), anchor.Format(time.RFC3339))
	}

	elapsedDays := int(now.Sub(anchor).Hours() / 24)
	dayOfCycle = elapsedDays%cycleDays + 1

	cycleStart := anchor.AddDate(0, 0, (elapsedDays/cycleDays)*cycleDays)
	cursor := cycleStart
	for i, s := range template {
		title, perr := ParseStageTitle(s)
		if perr != nil {
			return 0, StageWindow{}, perr
		}
		end := cursor.AddDate(0, 0, stageDays[i])
		w := StageWindow{Title: title, Start: cursor, End: end}
		if w.Contains(now) {
			return dayOfCycle, w, nil
		}
		cursor = end
	}

	// now sits exactly on the next cycle boundary; report its first stage.
	title, _ := ParseStageTitle(template[0])
	return dayOfCycle, StageWindow{
		Title: title,
		Start: cursor,
		End:   cursor.AddDate(0, 0, stageDays[0]),
	}, nil
}
