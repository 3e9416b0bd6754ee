package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/router"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	"github.com/hrygo/calroute/server/engine"
	calendar "github.com/hrygo/calroute/server/service/schedule"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// routeOutput adds the resolution error, which RouteResult keeps out of JSON.
type routeOutput struct {
	Query string `json:"query"`
	engine.RouteResult
	Error string `json:"error,omitempty"`
}

func newRouteCmd(c *cli) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Decide the action for a request and resolve its details",
		Example: `  calroute route "move my standup to the afternoon"
  cat queries.txt | calroute route --stdin --serve-metrics :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromStdin {
				return c.routeLines(cmd, cmd.InOrStdin())
			}
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			return c.route(cmd, query)
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "route one query per input line")
	return cmd
}

func (c *cli) route(cmd *cobra.Command, query string) error {
	res := c.app.engine.Route(cmd.Context(), query, engine.RouteContext{UserID: c.opts.userID})
	out := routeOutput{Query: query, RouteResult: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func (c *cli) routeLines(cmd *cobra.Command, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if err := c.route(cmd, query); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func newExtractCmd(c *cli) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "extract [query]",
		Short: "Extract title, time, attendees and recurrence from a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			kind, ok := router.ParseActionKind(action)
			if !ok {
				return errors.InvalidArgument(fmt.Sprintf("unknown action %q", action))
			}
			ent, clarification := c.app.engine.ExtractEntities(cmd.Context(), query, kind)
			return writeJSON(cmd.OutOrStdout(), struct {
				Entities      *schedule.Entities    `json:"entities"`
				Clarification *errors.Clarification `json:"clarification,omitempty"`
			}{ent, clarification})
		},
	}
	cmd.Flags().StringVar(&action, "action", string(router.ActionCreate), "action the query is for")
	return cmd
}

func newConflictsCmd(c *cli) *cobra.Command {
	var (
		at       string
		duration int
		exclude  string
	)
	cmd := &cobra.Command{
		Use:     "conflicts",
		Short:   "Check a proposed time against the calendar",
		Example: `  calroute conflicts --at "tomorrow at 3pm" --duration 45`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, clarification, err := c.app.engine.CheckConflictsExpr(cmd.Context(), at, duration, exclude)
			if err != nil {
				return err
			}
			if clarification != nil {
				return writeJSON(cmd.OutOrStdout(), clarification)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "proposed start, e.g. \"friday 2pm\"")
	cmd.Flags().IntVar(&duration, "duration", schedule.DefaultDurationMinutes, "duration in minutes")
	cmd.Flags().StringVar(&exclude, "exclude", "", "event id to ignore, e.g. the one being moved")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newFreeCmd(c *cli) *cobra.Command {
	var duration, days int
	cmd := &cobra.Command{
		Use:   "free",
		Short: "List free slots from now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slots, err := c.app.engine.SuggestFreeSlots(cmd.Context(), duration, days)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), slots)
		},
	}
	cmd.Flags().IntVar(&duration, "duration", schedule.DefaultDurationMinutes, "slot length in minutes")
	cmd.Flags().IntVar(&days, "days", engine.DefaultWindowDays, "search window in days")
	return cmd
}

func newMoveCmd(c *cli) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "move [query]",
		Short: "Find the event a reschedule request means and its new time",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			move, clarification, err := c.app.engine.ResolveMove(cmd.Context(), query)
			if err != nil {
				return err
			}
			if clarification != nil {
				return writeJSON(cmd.OutOrStdout(), clarification)
			}
			if !apply {
				return writeJSON(cmd.OutOrStdout(), move)
			}

			minutes := int(move.NewEnd.Sub(move.NewStart) / time.Minute)
			conflicts, err := c.app.engine.CheckConflicts(cmd.Context(), move.NewStart, minutes, move.Event.ID)
			if err != nil {
				return err
			}
			if conflicts.HasConflict {
				return writeJSON(cmd.OutOrStdout(), conflicts)
			}
			var moved *calendar.EventInterval
			if move.NewEnd.Sub(move.NewStart) == move.Event.Duration() {
				moved, err = c.app.calendar.MoveEvent(cmd.Context(), move.Event.ID, move.NewStart)
			} else {
				moved, err = c.app.calendar.UpdateEvent(cmd.Context(), move.Event.ID, &calendar.EventPatch{
					Start: &move.NewStart,
					End:   &move.NewEnd,
				})
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), moved)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "move the event when the new time is free")
	return cmd
}

func newCorrectCmd(c *cli) *cobra.Command {
	var wrong, correct string
	cmd := &cobra.Command{
		Use:     "correct [query]",
		Short:   "Record that a request was routed to the wrong action",
		Example: `  calroute correct --wrong create --correct list "what's next on my plate"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			correctKind, ok := router.ParseActionKind(correct)
			if !ok {
				return errors.InvalidArgument(fmt.Sprintf("unknown action %q", correct))
			}
			var wrongKind router.ActionKind
			if wrong != "" {
				if wrongKind, ok = router.ParseActionKind(wrong); !ok {
					return errors.InvalidArgument(fmt.Sprintf("unknown action %q", wrong))
				}
			}
			if err := c.app.engine.RecordCorrection(cmd.Context(), query, wrongKind, correctKind); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded: %q -> %s\n", query, correctKind)
			return nil
		},
	}
	cmd.Flags().StringVar(&wrong, "wrong", "", "action the router chose")
	cmd.Flags().StringVar(&correct, "correct", "", "action the request meant")
	_ = cmd.MarkFlagRequired("correct")
	return cmd
}

func newConfirmCmd(c *cli) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "confirm [query]",
		Short: "Store a correctly routed request as a classifier example",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			kind, ok := router.ParseActionKind(action)
			if !ok {
				return errors.InvalidArgument(fmt.Sprintf("unknown action %q", action))
			}
			return c.app.engine.RecordSuccess(cmd.Context(), query, kind, "")
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "action the request meant")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func queryArg(args []string) (string, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return "", errors.InvalidArgument("query is required")
	}
	return query, nil
}
