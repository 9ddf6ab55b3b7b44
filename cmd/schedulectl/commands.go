package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cyp0633/libschedule/internal/eventfile"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	eventsPath string
	logLevel   string
	timezone   string
}

// newRootCommand builds the command tree. The returned function releases
// the app a command opened and must run whether or not the command failed.
func newRootCommand() (*cobra.Command, func() error) {
	var (
		flags rootFlags
		a     *app
	)

	root := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Expand recurring events and edit their occurrences",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context(), appOptions{
				configPath: flags.configPath,
				eventsPath: flags.eventsPath,
				logLevel:   flags.logLevel,
				stderr:     cmd.ErrOrStderr(),
			})
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&flags.eventsPath, "events", "e", "", "event file (.yaml or .ics) to import before running")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level")
	pf.StringVar(&flags.timezone, "tz", "", "zone for times given without an offset; floating when empty")

	getApp := func() *app { return a }
	root.AddCommand(
		newExpandCommand(getApp, &flags),
		newAfterCommand(getApp, &flags),
		newActiveCommand(getApp, &flags),
		newCancelCommand(getApp, &flags, true),
		newCancelCommand(getApp, &flags, false),
		newMoveCommand(getApp, &flags),
		newImportCommand(getApp),
	)
	closeApp := func() error {
		if a == nil {
			return nil
		}
		err := a.Close()
		a = nil
		return err
	}
	return root, closeApp
}

func parseArgTime(flags *rootFlags, name, value string) (time.Time, error) {
	t, err := eventfile.ParseTime(value, flags.timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func newExpandCommand(getApp func() *app, flags *rootFlags) *cobra.Command {
	var (
		from, to string
		calendar string
		asICS    bool
	)
	cmd := &cobra.Command{
		Use:   "expand [event-id...]",
		Short: "List the occurrences of events in a window",
		Long: "List the occurrences of the given events, or of every event of a calendar\n" +
			"when no ID is given, between --from and --to inclusive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			ctx := cmd.Context()
			start, err := parseArgTime(flags, "from", from)
			if err != nil {
				return err
			}
			end, err := parseArgTime(flags, "to", to)
			if err != nil {
				return err
			}

			var events []*schedule.Event
			if len(args) == 0 {
				if events, err = a.store.ListEvents(ctx, calendar); err != nil {
					return err
				}
			} else {
				for _, id := range args {
					ev, err := a.store.GetEvent(ctx, id)
					if err != nil {
						return err
					}
					events = append(events, ev)
				}
			}

			result, err := a.svc.ExpandMany(ctx, events, start, end)
			if err != nil {
				return err
			}
			if asICS {
				return eventfile.WriteICS(cmd.OutOrStdout(), events, result)
			}
			var all []*schedule.Occurrence
			for _, ev := range events {
				all = append(all, result[ev.ID]...)
			}
			schedule.SortOccurrences(all)
			return printOccurrences(cmd.OutOrStdout(), all)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start")
	cmd.Flags().StringVar(&to, "to", "", "window end")
	cmd.Flags().StringVar(&calendar, "calendar", "", "calendar to expand when no event ID is given")
	cmd.Flags().BoolVar(&asICS, "ics", false, "write iCalendar instead of a table")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newAfterCommand(getApp func() *app, flags *rootFlags) *cobra.Command {
	var (
		after string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "after <event-id>",
		Short: "List the next occurrences of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			var at time.Time
			if after != "" {
				var err error
				if at, err = parseArgTime(flags, "after", after); err != nil {
					return err
				}
			}
			seq, err := a.svc.OccurrencesAfter(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			var occs []*schedule.Occurrence
			for occ := range seq {
				occs = append(occs, occ)
				if len(occs) >= limit {
					break
				}
			}
			return printOccurrences(cmd.OutOrStdout(), occs)
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "list occurrences ending after this time (default now)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of occurrences")
	return cmd
}

func newActiveCommand(getApp func() *app, flags *rootFlags) *cobra.Command {
	var from, to, calendar string
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List events with a live occurrence in a window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseArgTime(flags, "from", from)
			if err != nil {
				return err
			}
			end, err := parseArgTime(flags, "to", to)
			if err != nil {
				return err
			}
			events, err := getApp().svc.ActiveEvents(cmd.Context(), calendar, start, end)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tRULE")
			for _, ev := range events {
				rule := "-"
				if ev.Rule != nil {
					rule = ev.Rule.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", ev.ID, ev.Title, rule)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start")
	cmd.Flags().StringVar(&to, "to", "", "window end")
	cmd.Flags().StringVar(&calendar, "calendar", "", "restrict to one calendar")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newCancelCommand(getApp func() *app, flags *rootFlags, cancel bool) *cobra.Command {
	use, short := "cancel", "Cancel one occurrence"
	if !cancel {
		use, short = "uncancel", "Restore a cancelled occurrence"
	}
	return &cobra.Command{
		Use:   use + " <event-id> <original-start>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			at, err := parseArgTime(flags, "original-start", args[1])
			if err != nil {
				return err
			}
			op := a.svc.Cancel
			if !cancel {
				op = a.svc.Uncancel
			}
			occ, err := op(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			return printOccurrences(cmd.OutOrStdout(), []*schedule.Occurrence{occ})
		},
	}
}

func newMoveCommand(getApp func() *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move <event-id> <original-start> <start> [end]",
		Short: "Reschedule one occurrence",
		Long:  "Reschedule one occurrence. Without an end the occurrence keeps its length.",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			ctx := cmd.Context()
			original, err := parseArgTime(flags, "original-start", args[1])
			if err != nil {
				return err
			}
			start, err := parseArgTime(flags, "start", args[2])
			if err != nil {
				return err
			}

			var end time.Time
			if len(args) == 4 {
				if end, err = parseArgTime(flags, "end", args[3]); err != nil {
					return err
				}
			} else {
				current, err := a.svc.Occurrence(ctx, args[0], original)
				if err != nil {
					return err
				}
				end = start.Add(current.End.Sub(current.Start))
			}

			occ, err := a.svc.Move(ctx, args[0], original, start, end)
			if err != nil {
				return err
			}
			return printOccurrences(cmd.OutOrStdout(), []*schedule.Occurrence{occ})
		},
	}
}

func newImportCommand(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Store the events of YAML or iCalendar files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			for _, path := range args {
				f, err := eventfile.Load(path)
				if err != nil {
					return err
				}
				if err := f.Import(cmd.Context(), a.store); err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				ids := make([]string, 0, len(f.Events))
				for _, ev := range f.Events {
					ids = append(ids, ev.ID)
				}
				slices.Sort(ids)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events %v\n", path, len(ids), ids)
			}
			return nil
		},
	}
}

func printOccurrences(out io.Writer, occs []*schedule.Occurrence) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tSTART\tEND\tORIGINAL\tSTATE\tTITLE")
	for _, o := range occs {
		state := "scheduled"
		switch {
		case o.Cancelled:
			state = "cancelled"
		case o.Moved():
			state = "moved"
		}
		eventID := ""
		if o.Event != nil {
			eventID = o.Event.ID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			eventID,
			o.Start.Format(time.RFC3339),
			o.End.Format(time.RFC3339),
			o.OriginalStart.Format(time.RFC3339),
			state,
			strconv.Quote(o.Title))
	}
	return w.Flush()
}
