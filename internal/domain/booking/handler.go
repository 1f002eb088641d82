package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/now"
	"github.com/labstack/echo/v4"

	"github.com/hospital/portal/internal/platform/auth"
	"github.com/hospital/portal/pkg/pagination"
)

type Handler struct {
	svc      *Service
	loc      *time.Location
	validate *validator.Validate
}

// NewHandler builds the booking API. loc is the zone used to resolve the
// `date` query parameter into a day range.
func NewHandler(svc *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, loc: loc, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public booking form; auth.AuthSkipper lets it through unauthenticated.
	api.POST("/book", h.Book)

	// Read endpoints: staff and patients
	readGroup := api.Group("", auth.RequireRole(RoleDoctor, RoleNurse, RolePatient))
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/appointments/:id/requests", h.ListAppointmentRequests)
	readGroup.GET("/requests", h.ListRequests)
	readGroup.GET("/requests/:id", h.GetRequest)
	readGroup.GET("/request-types", h.ListRequestTypes)

	// Booking form submissions
	readGroup.POST("/requests", h.CreateRequest)

	// Staff endpoints
	staffGroup := api.Group("", auth.RequireRole(RoleDoctor, RoleNurse))
	staffGroup.POST("/appointments", h.CreateAppointment)
	staffGroup.PUT("/requests/:id", h.UpdateRequest)
	staffGroup.POST("/request-types", h.CreateRequestType)
}

// ActorFromContext identifies the authenticated caller.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{ID: auth.UserIDFromContext(ctx), Roles: auth.RolesFromContext(ctx)}
}

// -- DTOs --

type createAppointmentRequest struct {
	DoctorID              int64     `json:"doctor_id" validate:"required,gt=0"`
	EventType             string    `json:"event_type" validate:"required,max=100"`
	DateFrom              time.Time `json:"date_from" validate:"required"`
	DateTo                time.Time `json:"date_to" validate:"required,gtfield=DateFrom"`
	RegistrationMandatory *bool     `json:"registration_mandatory"`
}

type createRequestRequest struct {
	AppointmentID int64  `json:"appointment_id" validate:"required,gt=0"`
	PatientID     int64  `json:"patient_id" validate:"required,gt=0"`
	DoctorID      int64  `json:"doctor_id" validate:"omitempty,gt=0"`
	NurseID       *int64 `json:"nurse_id" validate:"omitempty,gt=0"`
	RequestTypeID *int64 `json:"request_type_id" validate:"omitempty,gt=0"`
	Description   string `json:"description" validate:"max=2000"`
}

type bookRequest struct {
	AppointmentID  int64  `json:"appointment_id" validate:"required,gt=0"`
	DoctorID       int64  `json:"doctor_id" validate:"required,gt=0"`
	RequestTypeID  int64  `json:"request_type_id" validate:"required,gt=0"`
	Name           string `json:"name" validate:"required,max=255"`
	Surname        string `json:"surname" validate:"required,max=255"`
	PhoneNumber    string `json:"phone_number" validate:"required,max=20"`
	PersonalNumber string `json:"personal_number" validate:"required,max=32"`
	Description    string `json:"description" validate:"max=2000"`
}

// bookingReceipt is all an anonymous caller gets back; patient data is not
// echoed.
type bookingReceipt struct {
	RequestID     int64        `json:"request_id"`
	AppointmentID int64        `json:"appointment_id"`
	State         RequestState `json:"state"`
}

type updateRequestState struct {
	State   string `json:"state" validate:"required"`
	Version int    `json:"version" validate:"gte=0"`
}

type createRequestTypeRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Length      int    `json:"length" validate:"gte=0"`
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var body createAppointmentRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	a := &Appointment{
		DoctorID:              body.DoctorID,
		EventType:             body.EventType,
		DateFrom:              body.DateFrom,
		DateTo:                body.DateTo,
		RegistrationMandatory: true,
	}
	if body.RegistrationMandatory != nil {
		a.RegistrationMandatory = *body.RegistrationMandatory
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), a); err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AppointmentFilter{Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.DoctorID, err = int64Query(c, "doctor_id"); err != nil {
		return err
	}
	if d := c.QueryParam("date"); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, h.loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date: want YYYY-MM-DD")
		}
		from, to := now.With(day).BeginningOfDay(), now.With(day).EndOfDay()
		f.From, f.To = &from, &to
	}
	if f.From == nil {
		if f.From, err = timeQuery(c, "from"); err != nil {
			return err
		}
	}
	if f.To == nil {
		if f.To, err = timeQuery(c, "to"); err != nil {
			return err
		}
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return ToHTTPError(err)
	}
	pagination.SetLinkHeader(c, pg, total)
	return c.JSON(http.StatusOK, pagination.NewPage(items, pg, total))
}

func (h *Handler) ListAppointmentRequests(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAppointmentRequests(c.Request().Context(), id)
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// -- Request Handlers --

func (h *Handler) CreateRequest(c echo.Context) error {
	var body createRequestRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	r := &Request{
		AppointmentID: body.AppointmentID,
		PatientID:     body.PatientID,
		DoctorID:      body.DoctorID,
		NurseID:       body.NurseID,
		RequestTypeID: body.RequestTypeID,
		Description:   body.Description,
	}
	if err := h.svc.CreateRequest(c.Request().Context(), r); err != nil {
		return ToHTTPError(err)
	}
	setETag(c, r.Version)
	return c.JSON(http.StatusCreated, r)
}

// Book accepts the public booking form. No identity is required.
func (h *Handler) Book(c echo.Context) error {
	var body bookRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	r, err := h.svc.Book(c.Request().Context(), Booking{
		AppointmentID: body.AppointmentID,
		DoctorID:      body.DoctorID,
		RequestTypeID: body.RequestTypeID,
		Description:   body.Description,
		Patient: PatientDetails{
			PersonalNumber: body.PersonalNumber,
			Name:           body.Name,
			Surname:        body.Surname,
			PhoneNumber:    body.PhoneNumber,
		},
	})
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, bookingReceipt{RequestID: r.ID, AppointmentID: r.AppointmentID, State: r.State})
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return ToHTTPError(err)
	}
	setETag(c, r.Version)
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := RequestFilter{Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.DoctorID, err = int64Query(c, "doctor_id"); err != nil {
		return err
	}
	if f.PatientID, err = int64Query(c, "patient_id"); err != nil {
		return err
	}
	if f.AppointmentID, err = int64Query(c, "appointment_id"); err != nil {
		return err
	}
	if raw := c.QueryParam("state"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.States = append(f.States, RequestState(strings.TrimSpace(s)))
		}
	}

	items, total, err := h.svc.ListRequests(c.Request().Context(), f)
	if err != nil {
		return ToHTTPError(err)
	}
	pagination.SetLinkHeader(c, pg, total)
	return c.JSON(http.StatusOK, pagination.NewPage(items, pg, total))
}

// UpdateRequest applies a state transition. The expected version comes from
// the body or, when the body omits it, from If-Match.
func (h *Handler) UpdateRequest(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body updateRequestState
	if err := h.bind(c, &body); err != nil {
		return err
	}
	version := body.Version
	if version == 0 {
		if version, err = VersionFromIfMatch(c.Request().Header.Get("If-Match")); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	ctx := c.Request().Context()
	r, err := h.svc.TransitionRequest(ctx, id, RequestState(body.State), version, ActorFromContext(ctx))
	if err != nil {
		return ToHTTPError(err)
	}
	setETag(c, r.Version)
	return c.JSON(http.StatusOK, r)
}

// -- Request Type Handlers --

func (h *Handler) CreateRequestType(c echo.Context) error {
	var body createRequestTypeRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	rt := &RequestType{Name: body.Name, Description: body.Description, Length: body.Length}
	if err := h.svc.CreateRequestType(c.Request().Context(), rt); err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, rt)
}

func (h *Handler) ListRequestTypes(c echo.Context) error {
	items, err := h.svc.ListRequestTypes(c.Request().Context())
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// -- helpers --

func (h *Handler) bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// ToHTTPError maps booking errors onto HTTP statuses.
func ToHTTPError(err error) error {
	var transition *TransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrActiveRequestExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &transition), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrVersionRequired):
		return echo.NewHTTPError(http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBookingDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// VersionFromIfMatch parses `"3"`, `W/"3"` or `3`. An empty header yields 0.
func VersionFromIfMatch(header string) (int, error) {
	v := strings.TrimSpace(header)
	if v == "" {
		return 0, nil
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid If-Match %q", header)
	}
	return n, nil
}

func setETag(c echo.Context, version int) {
	c.Response().Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func int64Query(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}

func timeQuery(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": want RFC 3339")
	}
	return &t, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
