package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/api"
	"example.com/stravasync/internal/auth"
	"example.com/stravasync/internal/outcome"
	"example.com/stravasync/internal/persistence"
)

var activityHeader = []string{"Activity", "Name", "Sport", "Distance km", "Start"}

func (r *root) authorizeURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize-url",
		Short: "Print the Strava consent URL for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			url, err := a.OAuth.AuthorizeURL(user)
			res := outcome.From(api.AuthorizeResponse{URL: url}, err)
			return result(r.printer(cmd), res, func(p *printer) {
				p.info("Open this URL to connect %s:", user)
				p.line(url)
			})
		},
	}
}

func (r *root) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored Strava token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.OAuth.Refresh(cmd.Context(), user)
			res := outcome.From(api.ToCredentialView(cred, ""), err)
			return result(r.printer(cmd), res, func(p *printer) {
				p.success("Token refreshed for %s, valid until %s", user, res.Data.ExpiresAt.Format(time.RFC3339))
			})
		},
	}
}

func (r *root) syncCommand() *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import new Strava activities for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			pol, err := activitysync.ParsePolicy(policy)
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sync.Sync(cmd.Context(), user, pol)
			res := outcome.From(api.ToSyncResponse(report), err)
			return result(r.printer(cmd), res, func(p *printer) {
				resp := res.Data
				switch {
				case resp.NoChanges && resp.UpdatedCount == 0:
					p.info("No new activities (%d already stored)", resp.SkippedCount)
				case resp.UpdatedCount > 0:
					p.success("Imported %d new and updated %d activities", resp.NewCount, resp.UpdatedCount)
				default:
					p.success("Imported %d new activities", resp.NewCount)
				}
				p.table(activityRows(resp.Activities))
			})
		},
	}
	cmd.Flags().StringVar(&policy, "policy", string(activitysync.PolicyInsertOnly), "write policy: insert_only or overwrite")
	return cmd
}

func (r *root) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics for a user's stored activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			a, err := r.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Stats.Summary(cmd.Context(), user)
			return result(r.printer(cmd), outcome.From(summary, err), func(p *printer) {
				p.info("%d activities, %.2f km total", summary.ActivityCount, summary.TotalDistanceKm)
				rows := [][]string{{"Sport", "Distance km"}}
				for sport, km := range sortedSports(summary.DistanceKmBySport) {
					rows = append(rows, []string{sport, fmt.Sprintf("%.2f", km)})
				}
				p.table(rows)
			})
		},
	}
}

func (r *root) activitiesCommand() *cobra.Command {
	var (
		limit  int
		cursor string
	)
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List stored activities, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			c, err := persistence.DecodeCursor(cursor)
			if err != nil {
				return fmt.Errorf("invalid cursor: %w", err)
			}
			a, err := r.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			page, next, err := a.Store.ListActivitiesPage(cmd.Context(), user, c, limit)
			resp := api.ListActivitiesResponse{Items: make([]api.ActivityView, 0, len(page)), NextCursor: persistence.EncodeCursor(next)}
			for _, act := range page {
				resp.Items = append(resp.Items, api.ToActivityView(act))
			}
			return result(r.printer(cmd), outcome.From(resp, err), func(p *printer) {
				if len(resp.Items) == 0 {
					p.info("No stored activities for %s", user)
					return
				}
				p.table(activityRows(resp.Items))
				if resp.NextCursor != "" {
					p.line("next cursor: " + resp.NextCursor)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue after this cursor")
	return cmd
}

func (r *root) tokenCommand() *cobra.Command {
	var (
		ttl    time.Duration
		scopes string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for calling the API as a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := r.userID()
			if err != nil {
				return err
			}
			cfg := r.config()
			token, err := auth.IssueToken(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, user, strings.Split(scopes, ","), ttl)
			return result(r.printer(cmd), outcome.From(map[string]string{"token": token}, err), func(p *printer) {
				p.line(token)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&scopes, "scopes", auth.ScopeActivitiesRead+","+auth.ScopeActivitiesWrite, "comma separated scopes")
	return cmd
}

func activityRows(items []api.ActivityView) [][]string {
	rows := [][]string{activityHeader}
	for _, act := range items {
		rows = append(rows, []string{
			strconv.FormatInt(act.ActivityID, 10),
			act.Name,
			act.SportType,
			fmt.Sprintf("%.2f", act.Distance/1000),
			act.StartDate.Format(time.RFC3339),
		})
	}
	return rows
}
