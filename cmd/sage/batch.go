package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/sage/pkg/leads"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/processor"
)

type matchLine struct {
	Participant models.ParticipantRecord `json:"participant"`
	Action      leads.Action             `json:"action,omitempty"`
	LeadID      string                   `json:"lead_id,omitempty"`
	Result      *models.MatchResult      `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type reconcileLine struct {
	LeadID        string `json:"lead_id"`
	AutoResolved  int    `json:"auto_resolved"`
	ReviewItemID  string `json:"review_item_id,omitempty"`
	Queued        int    `json:"queued"`
	Refreshed     int    `json:"refreshed,omitempty"`
	AlreadyQueued int    `json:"already_queued,omitempty"`
	SyncQueued    bool   `json:"sync_queued"`
	Error         string `json:"error,omitempty"`
}

func newMatchCommand(cc *commandContext) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a JSON array of participants to leads, creating leads where decided",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var requests []processor.MatchRequest
			if err := readJSON(input, cmd.InOrStdin(), &requests); err != nil {
				return err
			}

			return withProcessor(cmd.Context(), cc, false, func(p *processor.Processor) error {
				outcomes := p.MatchParticipants(cmd.Context(), requests)
				lines := make([]matchLine, len(outcomes))
				for i, o := range outcomes {
					lines[i] = matchLine{Participant: o.Participant}
					if o.Err != nil {
						lines[i].Error = o.Err.Error()
						continue
					}
					result := o.Outcome.Result
					lines[i].Action = o.Outcome.Action
					lines[i].Result = &result
					if o.Outcome.Lead != nil {
						lines[i].LeadID = o.Outcome.Lead.ID
					}
				}
				return printJSON(cmd.OutOrStdout(), lines)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "JSON input file, - for stdin")
	return cmd
}

func newReconcileCommand(cc *commandContext) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Detect and settle conflicts for a JSON array of {lead_id, meeting} requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cc.config.SnapshotBaseURL == "" {
				return fmt.Errorf("SNAPSHOT_BASE_URL is required to reconcile")
			}

			var requests []processor.ReconcileRequest
			if err := readJSON(input, cmd.InOrStdin(), &requests); err != nil {
				return err
			}

			return withProcessor(cmd.Context(), cc, true, func(p *processor.Processor) error {
				outcomes := p.Reconcile(cmd.Context(), requests)
				lines := make([]reconcileLine, len(outcomes))
				for i, o := range outcomes {
					lines[i] = reconcileLine{LeadID: o.LeadID}
					if o.Err != nil {
						lines[i].Error = o.Err.Error()
						continue
					}
					lines[i].AutoResolved = len(o.Result.AutoResolved)
					lines[i].SyncQueued = o.Result.SyncRequest != nil
					lines[i].Refreshed = len(o.Result.Refreshed)
					lines[i].AlreadyQueued = o.Result.AlreadyQueued
					if item := o.Result.ReviewItem; item != nil {
						lines[i].ReviewItemID = item.ID
						lines[i].Queued = len(item.Conflicts)
					}
				}
				return printJSON(cmd.OutOrStdout(), lines)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "JSON input file, - for stdin")
	return cmd
}

// withProcessor starts the database, and Redis when cached snapshots are wanted, for
// the duration of fn.
func withProcessor(ctx context.Context, cc *commandContext, withCache bool, fn func(*processor.Processor) error) error {
	deps := []string{depTracing, depDatabase}
	if withCache {
		deps = append(deps, depRedis)
	}

	s := newServices(cc)
	if err := s.start(ctx, false, deps...); err != nil {
		return err
	}
	defer s.stop(ctx)

	p, err := s.processor(s.repositories())
	if err != nil {
		return err
	}
	return fn(p)
}

func readJSON(path string, stdin io.Reader, dest any) error {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
