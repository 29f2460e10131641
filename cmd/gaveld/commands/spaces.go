package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/space"
)

// SpacesCmd groups governance space configuration management.
var SpacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Manage governance space configuration",
	Long: `Manage the governance spaces the daemon automates.

Examples:
  gaveld spaces ls                    # List auto-enabled spaces
  gaveld spaces show juicebox         # Show one space's configuration
  gaveld spaces apply juicebox.toml   # Create or update a space from a TOML file`,
}

// spaceFile is the on-disk TOML shape of one space definition.
type spaceFile struct {
	Name              string  `toml:"name"`
	DisplayName       string  `toml:"display_name"`
	AutoEnable        bool    `toml:"auto_enable"`
	CycleTriggerTime  string  `toml:"cycle_trigger_time"`
	CycleStageLengths []int   `toml:"cycle_stage_lengths"`
	CycleAnchor       string  `toml:"cycle_anchor"` // RFC 3339
	ChatChannel       string  `toml:"chat_channel"`
	OperatorChannel   string  `toml:"operator_channel"`
	AlertRole         string  `toml:"alert_role"`
	VoteSpace         string  `toml:"vote_space"`
	VoteQuorum        float64 `toml:"vote_quorum"`

	Poll struct {
		MinYesVotes int     `toml:"min_yes_votes"`
		YesNoRatio  float64 `toml:"yes_no_ratio"`
	} `toml:"poll"`
}

func (f *spaceFile) toConfig() (*space.Config, error) {
	if f.Name == "" {
		return nil, errors.New("space file is missing name")
	}
	anchor, err := time.Parse(time.RFC3339, f.CycleAnchor)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing cycle_anchor %q", f.CycleAnchor)
	}
	return &space.Config{
		Name:              f.Name,
		DisplayName:       f.DisplayName,
		AutoEnable:        f.AutoEnable,
		CycleTriggerTime:  f.CycleTriggerTime,
		CycleStageLengths: f.CycleStageLengths,
		CycleAnchor:       anchor,
		ChatChannel:       f.ChatChannel,
		OperatorChannel:   f.OperatorChannel,
		AlertRole:         f.AlertRole,
		Poll: space.Poll{
			MinYesVotes: f.Poll.MinYesVotes,
			YesNoRatio:  f.Poll.YesNoRatio,
		},
		VoteSpace:  f.VoteSpace,
		VoteQuorum: f.VoteQuorum,
	}, nil
}

var spacesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List auto-enabled spaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		spaces, err := space.NewStore(database).ListAutoEnabled(context.Background())
		if err != nil {
			return err
		}
		if len(spaces) == 0 {
			fmt.Println("No auto-enabled spaces")
			return nil
		}

		fmt.Printf("%-20s %-8s %-12s %s\n", "NAME", "CYCLE", "TRIGGER", "STAGES")
		for _, s := range spaces {
			stages := make([]string, len(s.CycleStageLengths))
			for i, d := range s.CycleStageLengths {
				stages[i] = fmt.Sprintf("%dd", d)
			}
			fmt.Printf("%-20s %-8d %-12s %s\n",
				s.Name, s.CurrentCycle, s.CycleTriggerTime, strings.Join(stages, "/"))
		}
		return nil
	},
}

var spacesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one space's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		s, err := space.NewStore(database).Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name:             %s\n", s.Name)
		fmt.Printf("Display name:     %s\n", s.DisplayName)
		fmt.Printf("Auto enable:      %t\n", s.AutoEnable)
		fmt.Printf("Current cycle:    %d\n", s.CurrentCycle)
		fmt.Printf("Trigger time:     %s UTC\n", s.CycleTriggerTime)
		fmt.Printf("Cycle anchor:     %s\n", s.CycleAnchor.UTC().Format(time.RFC3339))
		fmt.Printf("Stage lengths:    %v\n", s.CycleStageLengths)
		fmt.Printf("Chat channel:     %s\n", s.ChatChannel)
		fmt.Printf("Operator channel: %s\n", s.OperatorChannel)
		fmt.Printf("Alert role:       %s\n", s.AlertRole)
		fmt.Printf("Poll thresholds:  %d yes votes, %.2f yes ratio\n", s.Poll.MinYesVotes, s.Poll.YesNoRatio)
		fmt.Printf("Vote space:       %s\n", s.VoteSpace)
		fmt.Printf("Vote quorum:      %.0f\n", s.VoteQuorum)
		if s.LastCycleTrigger != nil {
			fmt.Printf("Last trigger:     %s\n", s.LastCycleTrigger.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

var spacesApplyCmd = &cobra.Command{
	Use:   "apply <file.toml>",
	Short: "Create or update a space from a TOML file",
	Long: `Create or update a space from a TOML definition file.

Cycle state (current cycle number and last trigger) is preserved on
update; only the configuration fields change.

Example file:

  name = "juicebox"
  display_name = "Juicebox"
  auto_enable = true
  cycle_trigger_time = "00:00"
  cycle_stage_lengths = [3, 4, 4, 3]
  cycle_anchor = "2026-01-01T00:00:00Z"
  chat_channel = "-1001234567890"
  operator_channel = "-1009876543210"
  alert_role = "@governance"
  vote_space = "jbdao.eth"
  vote_quorum = 80

  [poll]
  min_yes_votes = 10
  yes_no_ratio = 0.3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "reading %s", args[0])
		}

		var f spaceFile
		if err := toml.Unmarshal(content, &f); err != nil {
			return errors.Wrapf(err, "parsing %s", args[0])
		}
		sc, err := f.toConfig()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := space.NewStore(database).Put(context.Background(), sc); err != nil {
			return err
		}

		fmt.Printf("Space %s applied\n", sc.Name)
		return nil
	},
}

func init() {
	SpacesCmd.AddCommand(spacesLsCmd)
	SpacesCmd.AddCommand(spacesShowCmd)
	SpacesCmd.AddCommand(spacesApplyCmd)
}
