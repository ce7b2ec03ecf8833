package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"learn-gateway/pacing"

	"github.com/spf13/cobra"
)

// errDenied faz o processo sair com status != 0 quando um check nega.
var errDenied = errors.New("denied")

func verdictText(v pacing.Verdict) string {
	if v.Allowed {
		return fmt.Sprintf("allowed (remaining %d)", v.Remaining)
	}
	return fmt.Sprintf("denied [%s]: %s", v.Reason, v.Message)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored pacing state and current limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			st := l.State(ctx)
			report := struct {
				State    pacing.State          `json:"state"`
				Daily    pacing.Result         `json:"daily"`
				Cooldown pacing.CooldownResult `json:"cooldown"`
				API      pacing.Result         `json:"api"`
			}{
				State:    st,
				Daily:    l.CheckDailyLimit(ctx),
				Cooldown: l.CheckCooldown(ctx),
				API:      l.CheckAPIRateLimit(ctx),
			}

			var b strings.Builder
			days := make([]string, 0, len(st.DailySessionCounts))
			for d := range st.DailySessionCounts {
				days = append(days, d)
			}
			sort.Strings(days)
			for _, d := range days {
				fmt.Fprintf(&b, "sessions %s: %d\n", d, st.DailySessionCounts[d])
			}
			if st.LastSessionEnd != nil {
				fmt.Fprintf(&b, "last session end: %s\n", st.LastSessionEnd.Format(time.RFC3339))
			}
			fmt.Fprintf(&b, "daily: allowed=%v remaining=%d\n", report.Daily.Allowed, report.Daily.Remaining)
			fmt.Fprintf(&b, "cooldown: allowed=%v wait=%dm\n", report.Cooldown.Allowed, report.Cooldown.WaitMinutes)
			fmt.Fprintf(&b, "api: allowed=%v remaining=%d", report.API.Allowed, report.API.Remaining)

			return opts.print(cmd.OutOrStdout(), report, b.String())
		},
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Check daily limit and cooldown before starting a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := l.NewSession().Start(cmd.Context())
			if err != nil {
				return err
			}
			if err := opts.print(cmd.OutOrStdout(), v, verdictText(v)); err != nil {
				return err
			}
			if !v.Allowed {
				return errDenied
			}
			return nil
		},
	}
}

func newRoundCmd(opts *rootOptions) *cobra.Command {
	var current int
	cmd := &cobra.Command{
		Use:   "round",
		Short: "Check round and API burst limits; records the API call when allowed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if current < 0 {
				return fmt.Errorf("--current must be >= 0")
			}
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := l.ResumeSession(current).BeginRound(cmd.Context())
			if err != nil {
				return err
			}
			if err := opts.print(cmd.OutOrStdout(), v, verdictText(v)); err != nil {
				return err
			}
			if !v.Allowed {
				return errDenied
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&current, "current", 0, "rounds already done in this session")
	return cmd
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call",
		Short: "Record an API call dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()

			l.RecordAPICall(cmd.Context())
			n := len(l.State(cmd.Context()).APICallTimestamps)
			return opts.print(cmd.OutOrStdout(), map[string]int{"stored": n}, fmt.Sprintf("recorded (%d stored)", n))
		},
	}
}

func newEndCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Record the end of a session (starts cooldown, counts the session)",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := l.ResumeSession(0).End(cmd.Context()); err != nil {
				return err
			}
			today := l.State(cmd.Context()).DailySessionCounts[time.Now().Format(pacing.DayLayout)]
			return opts.print(cmd.OutOrStdout(), map[string]int{"sessionsToday": today}, fmt.Sprintf("session ended (%d today)", today))
		},
	}
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Drop old daily counts and stale API timestamps",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := opts.limiter()
			if err != nil {
				return err
			}
			defer closeFn()

			l.Cleanup(cmd.Context())
			st := l.State(cmd.Context())
			return opts.print(cmd.OutOrStdout(), st, fmt.Sprintf("kept %d days, %d api calls", len(st.DailySessionCounts), len(st.APICallTimestamps)))
		},
	}
}
