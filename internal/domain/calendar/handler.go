package calendar

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospital/portal/internal/domain/booking"
	"github.com/hospital/portal/internal/platform/auth"
	"github.com/hospital/portal/pkg/portalclient"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/calendar", auth.RequireRole(booking.RoleDoctor, booking.RoleNurse))
	staff.GET("", h.GetDay)
	staff.POST("/slots/:appointment_id/:action", h.Act)
}

// slotView is a slot with the actions the caller may take on it.
type slotView struct {
	Slot
	Actions []Action `json:"actions"`
}

type dayResponse struct {
	DoctorID int64      `json:"doctor_id"`
	Date     Date       `json:"date"`
	Slots    []slotView `json:"slots"`
}

type actRequest struct {
	Version int `json:"version"`
}

// GetDay renders one doctor's day.
func (h *Handler) GetDay(c echo.Context) error {
	doctorID, date, err := h.selection(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.Day(c.Request().Context(), doctorID, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.render(c, doctorID, date, slots))
}

// Act runs approve, decline or cancel against the slot of an appointment and
// answers with the refetched day.
func (h *Handler) Act(c echo.Context) error {
	doctorID, date, err := h.selection(c)
	if err != nil {
		return err
	}
	appointmentID, err := strconv.ParseInt(c.Param("appointment_id"), 10, 64)
	if err != nil || appointmentID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
	}
	action := Action(c.Param("action"))
	if action.TargetState() == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown action "+strconv.Quote(string(action)))
	}

	var body actRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if body.Version == 0 {
		if body.Version, err = booking.VersionFromIfMatch(c.Request().Header.Get("If-Match")); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	ctx := c.Request().Context()
	slot, err := h.svc.Slot(ctx, doctorID, date, appointmentID)
	if err != nil {
		return toHTTPError(err)
	}
	if body.Version > 0 {
		slot.RequestVersion = body.Version
	}
	if err := h.svc.Act(ctx, slot, action); err != nil {
		return toHTTPError(err)
	}

	slots, err := h.svc.FreshDay(ctx, doctorID, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.render(c, doctorID, date, slots))
}

// selection reads doctor_id and date. date defaults to today in the
// calendar's zone.
func (h *Handler) selection(c echo.Context) (int64, Date, error) {
	doctorID, err := strconv.ParseInt(c.QueryParam("doctor_id"), 10, 64)
	if err != nil || doctorID <= 0 {
		return 0, Date{}, echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return doctorID, DateOf(time.Now(), h.svc.Reconciler().Location()), nil
	}
	date, err := ParseDate(raw)
	if err != nil {
		return 0, Date{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return doctorID, date, nil
}

func (h *Handler) render(c echo.Context, doctorID int64, date Date, slots []Slot) dayResponse {
	role := staffRole(auth.RolesFromContext(c.Request().Context()))
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		actions := AllowedActions(s, role)
		if actions == nil {
			actions = []Action{}
		}
		views = append(views, slotView{Slot: s, Actions: actions})
	}
	return dayResponse{DoctorID: doctorID, Date: date, Slots: views}
}

// staffRole picks the most privileged calendar role among roles.
func staffRole(roles []string) string {
	best := ""
	rank := map[string]int{booking.RolePatient: 1, booking.RoleNurse: 2, booking.RoleDoctor: 3, booking.RoleAdmin: 4}
	for _, r := range roles {
		if rank[r] > rank[best] {
			best = r
		}
	}
	return best
}

func toHTTPError(err error) error {
	var (
		missing   *MissingReferenceError
		transient *portalclient.TransientNetworkError
		apiErr    *portalclient.APIError
	)
	switch {
	case errors.As(err, &missing):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotLoaded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrUnknownAction):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &transient):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.As(err, &apiErr):
		return echo.NewHTTPError(apiErr.StatusCode, apiErr.Message)
	}
	return booking.ToHTTPError(err)
}
