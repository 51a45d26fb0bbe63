package settlement

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/emergency"
	"github.com/doklink/doklink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/admissions/:id/expenses", h.AddExpense)
	api.GET("/admissions/:id/expenses", h.ListExpenses)
	api.POST("/admissions/:id/finalize", h.Finalize)
	api.GET("/admissions/:id/payment", h.GetPayment)
	api.POST("/payments/order", h.CreateOrder)
	api.POST("/payments/verify", h.VerifyPayment)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, emergency.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrGateway):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func requireUser(c echo.Context) error {
	if auth.UserIDFromContext(c.Request().Context()) == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return nil
}

func bookingParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type addExpenseRequest struct {
	Date             *time.Time       `json:"expense_date"`
	Type             ExpenseType      `json:"expense_type"`
	Description      *string          `json:"description"`
	Amount           decimal.Decimal  `json:"amount"`
	InsuranceCovered *decimal.Decimal `json:"insurance_covered"`
	PatientShare     *decimal.Decimal `json:"patient_share"`
}

func (h *Handler) AddExpense(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	bookingID, err := bookingParam(c)
	if err != nil {
		return err
	}
	var req addExpenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var date time.Time
	if req.Date != nil {
		date = *req.Date
	}
	e, err := h.svc.AddExpense(c.Request().Context(), bookingID, date, req.Type,
		req.Amount, req.InsuranceCovered, req.PatientShare, req.Description)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListExpenses(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	bookingID, err := bookingParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExpenses(c.Request().Context(), bookingID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":    len(items),
		"expenses": items,
	})
}

func (h *Handler) Finalize(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	bookingID, err := bookingParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.FinalizeDischarge(c.Request().Context(), bookingID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	bookingID, err := bookingParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), bookingID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type createOrderRequest struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BookingID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "booking_id is required")
	}
	p, err := h.svc.CreateOrder(c.Request().Context(), req.BookingID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type verifyPaymentRequest struct {
	BookingID uuid.UUID `json:"booking_id"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Signature string    `json:"signature"`
	Method    *string   `json:"method"`
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	if err := requireUser(c); err != nil {
		return err
	}
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BookingID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "booking_id is required")
	}
	p, err := h.svc.VerifyPayment(c.Request().Context(), req.BookingID, req.OrderID, req.PaymentID, req.Signature, req.Method)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}
