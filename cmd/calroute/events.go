package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/aitime"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	"github.com/hrygo/calroute/server/engine"
	calendar "github.com/hrygo/calroute/server/service/schedule"
)

func newEventsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage events in the local calendar",
	}
	cmd.AddCommand(newEventsAddCmd(c), newEventsListCmd(c), newEventsDeleteCmd(c))
	return cmd
}

func newEventsAddCmd(c *cli) *cobra.Command {
	var (
		title      string
		at         string
		duration   int
		location   string
		attendees  []string
		recurrence string
	)
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add an event",
		Example: `  calroute events add --title "Team standup" --at "monday 9am" --duration 15 --rrule "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(title) == "" {
				return errors.InvalidArgument("title is required")
			}
			if duration <= 0 {
				return errors.InvalidArgument(fmt.Sprintf("duration must be positive, got %d", duration))
			}
			start, err := c.app.engine.ParseTime(cmd.Context(), at)
			if err != nil {
				return errors.InvalidArgument(fmt.Sprintf("cannot understand start %q", at))
			}

			created, err := c.app.calendar.CreateEvent(cmd.Context(), &calendar.CreateEventRequest{
				Title:      title,
				Location:   location,
				Start:      start,
				End:        start.Add(time.Duration(duration) * time.Minute),
				Attendees:  attendees,
				Recurrence: recurrence,
			})
			if err != nil {
				return err
			}
			c.app.logger.Info("event created", "id", created.ID, "start", created.Start)
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "event title")
	cmd.Flags().StringVar(&at, "at", "", "start time, e.g. \"tomorrow at 10am\"")
	cmd.Flags().IntVar(&duration, "duration", schedule.DefaultDurationMinutes, "duration in minutes")
	cmd.Flags().StringVar(&location, "location", "", "event location")
	cmd.Flags().StringSliceVar(&attendees, "attendee", nil, "attendee email (repeatable)")
	cmd.Flags().StringVar(&recurrence, "rrule", "", "recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newEventsListCmd(c *cli) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "list [range]",
		Short: "List events, with recurring events expanded",
		Long: `List events in a range such as "this week", "tomorrow" or "friday".
Without a range the next --days days from the start of today are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := c.app.engine.Location()
			now := time.Now().In(loc)
			start := aitime.StartOfDay(now)
			end := start.AddDate(0, 0, days)
			if phrase := strings.TrimSpace(strings.Join(args, " ")); phrase != "" {
				r, err := c.app.engine.ParseRange(cmd.Context(), phrase)
				if err != nil {
					return errors.InvalidArgument(fmt.Sprintf("cannot understand range %q", phrase))
				}
				start, end = r.Start, r.End
			}
			events, err := c.app.calendar.ListEvents(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().IntVar(&days, "days", engine.DefaultWindowDays, "days to list when no range is given")
	return cmd
}

func newEventsDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := c.app.calendar.DeleteEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return errors.InvalidArgument(fmt.Sprintf("no event with id %q", args[0]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
