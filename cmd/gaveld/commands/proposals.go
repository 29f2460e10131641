package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/space"
)

// ProposalsCmd groups proposal listing and registration.
var ProposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "List and register proposals",
	Long: `List and register governance proposals.

Registered proposals start in the Discussion status and enter the
temperature check at the next rollup of their space's cycle.

Examples:
  gaveld proposals ls --space juicebox
  gaveld proposals ls --space juicebox --status Voting
  gaveld proposals add --space juicebox --title "Renew grants budget" \
      --author 0xabc --body-file proposal.md`,
}

var (
	proposalsSpaceFlag  string
	proposalsStatusFlag string
	proposalsLimitFlag  int

	addTitleFlag         string
	addAuthorFlag        string
	addProposalIDFlag    string
	addBodyFileFlag      string
	addDiscussionURLFlag string
)

var proposalsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a space's proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if proposalsSpaceFlag == "" {
			return fmt.Errorf("--space is required")
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

		ctx := context.Background()
		store := proposal.NewStore(database)

		var proposals []*proposal.Proposal
		if proposalsStatusFlag != "" {
			status, err := proposal.ParseStatus(proposalsStatusFlag)
			if err != nil {
				return err
			}
			proposals, err = store.GetByStatus(ctx, proposalsSpaceFlag, status)
			if err != nil {
				return err
			}
		} else {
			proposals, err = store.ListBySpace(ctx, proposalsSpaceFlag, proposalsLimitFlag)
			if err != nil {
				return err
			}
		}

		if len(proposals) == 0 {
			fmt.Println("No proposals found")
			return nil
		}

		fmt.Printf("%-12s %-10s %-18s %-6s %s\n", "HASH", "ID", "STATUS", "CYCLE", "TITLE")
		for _, p := range proposals {
			hash := p.Hash
			if len(hash) > 10 {
				hash = hash[:10]
			}
			fmt.Printf("%-12s %-10s %-18s %-6d %s\n",
				hash, p.ProposalID, p.Status, p.GovernanceCycle, p.Title)
		}
		return nil
	},
}

var proposalsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a proposal for discussion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if proposalsSpaceFlag == "" {
			return fmt.Errorf("--space is required")
		}
		if addTitleFlag == "" {
			return fmt.Errorf("--title is required")
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

		ctx := context.Background()

		// The space must exist; its cycle number stamps the proposal.
		sc, err := space.NewStore(database).Get(ctx, proposalsSpaceFlag)
		if err != nil {
			return err
		}

		body := ""
		if addBodyFileFlag != "" {
			content, err := os.ReadFile(addBodyFileFlag)
			if err != nil {
				return errors.Wrapf(err, "reading %s", addBodyFileFlag)
			}
			body = string(content)
		}

		p := &proposal.Proposal{
			Hash:                proposalHash(sc.Name, addTitleFlag, time.Now()),
			Space:               sc.Name,
			ProposalID:          addProposalIDFlag,
			Title:               addTitleFlag,
			Body:                body,
			Status:              proposal.StatusDiscussion,
			GovernanceCycle:     sc.CurrentCycle,
			Author:              addAuthorFlag,
			DiscussionThreadURL: addDiscussionURLFlag,
		}
		if err := proposal.NewStore(database).Put(ctx, p); err != nil {
			return err
		}

		fmt.Printf("Proposal %s registered in %s (cycle %d)\n", p.Hash[:10], sc.Name, sc.CurrentCycle)
		return nil
	},
}

// proposalHash derives a stable identifier from the proposal's origin.
func proposalHash(space, title string, at time.Time) string {
	sum := sha256.Sum256([]byte(space + "\x00" + title + "\x00" + at.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:16])
}

func init() {
	ProposalsCmd.PersistentFlags().StringVar(&proposalsSpaceFlag, "space", "", "Space name")
	proposalsLsCmd.Flags().StringVar(&proposalsStatusFlag, "status", "", "Filter by status (e.g. Discussion, Voting)")
	proposalsLsCmd.Flags().IntVar(&proposalsLimitFlag, "limit", 50, "Maximum number of proposals to list")
	proposalsAddCmd.Flags().StringVar(&addTitleFlag, "title", "", "Proposal title")
	proposalsAddCmd.Flags().StringVar(&addAuthorFlag, "author", "", "Proposal author")
	proposalsAddCmd.Flags().StringVar(&addProposalIDFlag, "id", "", "Human-readable proposal id (e.g. JBP-101)")
	proposalsAddCmd.Flags().StringVar(&addBodyFileFlag, "body-file", "", "File containing the proposal body")
	proposalsAddCmd.Flags().StringVar(&addDiscussionURLFlag, "discussion-url", "", "Link to the discussion thread")

	ProposalsCmd.AddCommand(proposalsLsCmd)
	ProposalsCmd.AddCommand(proposalsAddCmd)
}
