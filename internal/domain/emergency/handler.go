package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/doklink/doklink/internal/domain/hospital"
	"github.com/doklink/doklink/internal/platform/auth"
	"github.com/doklink/doklink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/emergency/trigger", h.Trigger)
	api.POST("/emergency/book-bed", h.BookBed)
	api.GET("/emergency/booking/:id", h.GetBooking)
	api.PUT("/emergency/booking/:id/status", h.UpdateStatus)
	api.GET("/emergency/active", h.GetActive)
	api.GET("/emergency/bookings", h.ListBookings)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, hospital.ErrValidation),
		errors.Is(err, hospital.ErrNoCapacity):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, hospital.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func requireUser(c echo.Context) (uuid.UUID, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return uid, nil
}

type triggerRequest struct {
	Latitude      float64          `json:"lat"`
	Longitude     float64          `json:"lon"`
	EmergencyType string           `json:"emergency_type"`
	BedType       hospital.BedType `json:"bed_type"`
}

func (h *Handler) Trigger(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !hospital.ValidCoordinates(req.Latitude, req.Longitude) {
		return echo.NewHTTPError(http.StatusBadRequest, "coordinates out of range")
	}
	result, err := h.svc.Trigger(c.Request().Context(), req.Latitude, req.Longitude, req.BedType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type bookBedRequest struct {
	HospitalID              uuid.UUID        `json:"hospital_id"`
	BedType                 hospital.BedType `json:"bed_type"`
	EmergencyType           string           `json:"emergency_type"`
	PatientCondition        *string          `json:"patient_condition"`
	ContactPerson           string           `json:"contact_person"`
	ContactPhone            string           `json:"contact_phone"`
	Latitude                *float64         `json:"latitude"`
	Longitude               *float64         `json:"longitude"`
	EstimatedArrivalMinutes int              `json:"estimated_arrival_minutes"`
	Notes                   *string          `json:"notes"`
}

func (h *Handler) BookBed(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	var req bookBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	b := &Booking{
		UserID:                  userID,
		HospitalID:              req.HospitalID,
		BedType:                 req.BedType,
		EmergencyType:           req.EmergencyType,
		PatientCondition:        req.PatientCondition,
		ContactPerson:           req.ContactPerson,
		ContactPhone:            req.ContactPhone,
		Latitude:                req.Latitude,
		Longitude:               req.Longitude,
		EstimatedArrivalMinutes: req.EstimatedArrivalMinutes,
		Notes:                   req.Notes,
	}
	if err := h.svc.Create(c.Request().Context(), b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id, userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type statusUpdateRequest struct {
	Status Status `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	b, err := h.svc.Transition(c.Request().Context(), id, userID, req.Status, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetActive(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetActive(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByUser(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
