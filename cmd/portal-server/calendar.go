package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospital/portal/internal/config"
	"github.com/hospital/portal/internal/domain/calendar"
	"github.com/hospital/portal/internal/platform/auth"
	"github.com/hospital/portal/internal/platform/cache"
	"github.com/hospital/portal/pkg/portalclient"
)

// calendarCmd is the staff dashboard on the command line. It talks to a
// running portal through PORTAL_API_URL.
func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show and act on a doctor's day",
	}
	cmd.PersistentFlags().Int64("doctor", 0, "Doctor id")
	cmd.PersistentFlags().String("date", "", "Day as YYYY-MM-DD (default today)")
	cmd.PersistentFlags().String("role", "doctor", "Staff role used to list allowed actions")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List the slots of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newCalendarSession(cmd)
			if err != nil {
				return err
			}
			slots, err := sess.svc.FreshDay(sess.ctx, sess.doctorID, sess.date)
			if err != nil {
				return err
			}
			printDay(os.Stdout, sess.doctorID, sess.date, slots, sess.role)
			return nil
		},
	})

	for _, action := range []calendar.Action{calendar.ActionApprove, calendar.ActionDecline, calendar.ActionCancel} {
		cmd.AddCommand(actionCmd(action))
	}
	return cmd
}

func actionCmd(action calendar.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action),
		Short: fmt.Sprintf("Send %s for the request behind a slot", action),
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, _ := cmd.Flags().GetInt64("appointment")
			if appointmentID <= 0 {
				return fmt.Errorf("--appointment is required")
			}
			sess, err := newCalendarSession(cmd)
			if err != nil {
				return err
			}
			slot, err := sess.svc.Slot(sess.ctx, sess.doctorID, sess.date, appointmentID)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetInt("version"); v > 0 {
				slot.RequestVersion = v
			}
			actErr := sess.svc.Act(sess.ctx, slot, action)

			// The day is shown again whether or not the action went through.
			slots, err := sess.svc.FreshDay(sess.ctx, sess.doctorID, sess.date)
			if err == nil {
				printDay(os.Stdout, sess.doctorID, sess.date, slots, sess.role)
			}
			if actErr != nil {
				return describeActionError(actErr)
			}
			return err
		},
	}
	cmd.Flags().Int64("appointment", 0, "Appointment id of the slot")
	cmd.Flags().Int("version", 0, "Expected request version (default: as listed)")
	return cmd
}

type calendarSession struct {
	ctx      context.Context
	svc      *calendar.Service
	doctorID int64
	date     calendar.Date
	role     string
}

func newCalendarSession(cmd *cobra.Command) (*calendarSession, error) {
	doctorID, _ := cmd.Flags().GetInt64("doctor")
	if doctorID <= 0 {
		return nil, fmt.Errorf("--doctor is required")
	}
	rawDate, _ := cmd.Flags().GetString("date")
	role, _ := cmd.Flags().GetString("role")

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	date, err := parseDay(rawDate, loc, time.Now())
	if err != nil {
		return nil, err
	}

	svc, err := newRemoteCalendar(cfg, loc, logger)
	if err != nil {
		return nil, err
	}
	return &calendarSession{
		ctx:      auth.WithIdentity(cmd.Context(), "cli", []string{role}),
		svc:      svc,
		doctorID: doctorID,
		date:     date,
		role:     role,
	}, nil
}

func newRemoteCalendar(cfg *config.ClientConfig, loc *time.Location, logger zerolog.Logger) (*calendar.Service, error) {
	client, err := portalclient.New(cfg.APIURL,
		portalclient.WithToken(cfg.APIToken),
		portalclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		portalclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	remote := calendar.NewRemoteBackend(client)
	return calendar.NewService(remote, remote, calendar.NewReconciler(loc, logger), cache.Noop(), 0, logger), nil
}

// parseDay reads a YYYY-MM-DD flag. Empty means the current day in loc.
func parseDay(raw string, loc *time.Location, now time.Time) (calendar.Date, error) {
	if raw == "" {
		return calendar.DateOf(now, loc), nil
	}
	return calendar.ParseDate(raw)
}

func printDay(w io.Writer, doctorID int64, date calendar.Date, slots []calendar.Slot, role string) {
	fmt.Fprintf(w, "Doctor %d, %s\n", doctorID, date)
	if len(slots) == 0 {
		fmt.Fprintln(w, "No appointments.")
		return
	}
	fmt.Fprintf(w, "%-6s %-12s %-10s %-8s %-30s %s\n", "START", "APPOINTMENT", "STATUS", "REQUEST", "REASON", "ACTIONS")
	for _, s := range slots {
		request := "-"
		if s.RequestID != nil {
			request = fmt.Sprintf("%d", *s.RequestID)
		}
		status := string(s.Status)
		if s.WalkIn && s.Status == calendar.StatusAvailable {
			status += "*"
		}
		actions := make([]string, 0, 3)
		for _, a := range calendar.AllowedActions(s, role) {
			actions = append(actions, string(a))
		}
		fmt.Fprintf(w, "%-6s %-12d %-10s %-8s %-30s %s\n",
			s.Start, s.AppointmentID, status, request, s.Reason, strings.Join(actions, ","))
	}
}

// describeActionError turns client failures into messages for the terminal.
func describeActionError(err error) error {
	var (
		missing   *calendar.MissingReferenceError
		transient *portalclient.TransientNetworkError
		apiErr    *portalclient.APIError
	)
	switch {
	case errors.As(err, &missing):
		return fmt.Errorf("slot has no request to act on: %w", err)
	case errors.As(err, &transient):
		return fmt.Errorf("portal unreachable, try again: %w", err)
	case errors.Is(err, portalclient.ErrConflict):
		return fmt.Errorf("request changed since it was listed, reload and retry: %w", err)
	case errors.As(err, &apiErr):
		return fmt.Errorf("portal refused the action (%d): %s", apiErr.StatusCode, apiErr.Message)
	}
	return err
}
