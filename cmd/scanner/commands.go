package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"qrattend/internal/backend"
	"qrattend/internal/config"
	"qrattend/internal/ledger"
	"qrattend/internal/log"
	"qrattend/internal/retry"
	"qrattend/internal/roster"
	"qrattend/internal/scan"
	"qrattend/internal/session"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "read scanned codes from stdin, one per line (:refresh reloads the roster)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return scanLoop(ctx, s, cmd.Root().Reader, cmd.Root().Writer)
		},
	}
}

func markCommand() *cli.Command {
	return &cli.Command{
		Name:      "mark",
		Usage:     "set a student's status by hand",
		ArgsUsage: "<student-id> <present|absent|excused>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("mark needs a student id and a status")
			}
			status, err := ledger.ParseStatus(cmd.Args().Get(1))
			if err != nil {
				return err
			}
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.MarkStatus(ctx, cmd.Args().Get(0), status)
			if err != nil {
				return err
			}
			printMark(cmd.Root().Writer, m)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "merge the server's records for the session into the local ledger",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "adopted %d, ledger holds %d\n", n, len(s.LedgerSnapshot()))
			return nil
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "print the roster with each student's status",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			writeSnapshot(cmd.Root().Writer, s.Roster(), s.LedgerSnapshot())
			return nil
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "print the section's dashboard counts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sum, err := s.Summary(ctx)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			fmt.Fprintf(w, "%s %s enrolled=%d present=%d absent=%d excused=%d unmarked=%d",
				sum.SectionID, sum.Date, sum.Enrolled, sum.Present, sum.Absent, sum.Excused, sum.Unmarked)
			if sum.Degraded {
				fmt.Fprint(w, " (offline)")
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}

// openSession builds a session from the environment and flags and opens
// the requested section. An unreachable backend is logged, not fatal.
func openSession(ctx context.Context, cmd *cli.Command) (*session.Session, error) {
	l := log.FromContext(ctx)

	cfg, err := config.LoadScanner(ctx)
	if err != nil {
		return nil, err
	}
	if v := cmd.String("backend"); v != "" {
		cfg.BackendURL = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Token = v
	}

	date := time.Now()
	if v := cmd.String("date"); v != "" {
		date, err = time.ParseInLocation(ledger.DateLayout, v, time.Local)
		if err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}

	cache, err := roster.NewCache(cfg.RosterCacheTTL)
	if err != nil {
		l.Warn("roster cache disabled", "err", err)
	}

	s := session.New(backend.New(cfg.BackendURL, cfg.Token), session.Config{
		Policy: retry.Policy{
			MaxAttempts: 2,
			Timeouts:    []time.Duration{cfg.FirstTimeout, cfg.RetryTimeout},
		},
		Debounce: cfg.Debounce,
		Cache:    cache,
		Logger:   log.Child(l, "session"),
	})
	section := scan.Section{ID: cmd.String("section"), CourseOfferingID: cmd.String("offering")}
	if err := s.Open(ctx, section, date); err != nil {
		if !backend.IsTransient(err) {
			s.Close()
			return nil, err
		}
		l.Warn("roster unavailable", "section", section.ID, "err", err)
	}
	return s, nil
}

func scanLoop(ctx context.Context, s *session.Session, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case ":refresh":
			if err := s.RefreshRoster(ctx); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			} else {
				fmt.Fprintf(w, "roster: %d students\n", len(s.Roster()))
			}
			continue
		}

		m, err := s.ResolveScan(ctx, line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		printMark(w, m)
	}
	return sc.Err()
}

func printMark(w io.Writer, m session.Mark) {
	name := m.Name
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(w, "%-8s %-12s %-24s %5.1f%%\n", m.Status, m.StudentID, name, m.Percentage)
}

func writeSnapshot(w io.Writer, entries []roster.Entry, statuses map[string]ledger.Status) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := e.Student.Key()
		seen[key] = true
		status := statuses[key]
		if status == ledger.Unset {
			status = "-"
		}
		fmt.Fprintf(w, "%-8s %-12s %-24s %5.1f%%\n", status, key, e.Student.Name, e.Percentage)
	}

	var extra []string
	for id := range statuses {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		fmt.Fprintf(w, "%-8s %-12s %-24s\n", statuses[id], id, "(not on roster)")
	}
}
