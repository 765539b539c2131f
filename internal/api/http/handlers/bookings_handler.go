package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/service"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// BookingsHandler serves booking endpoints for every account kind. Scoping
// is enforced by the service.
type BookingsHandler struct {
	service *service.BookingService
}

// NewBookingsHandler constructs handler.
func NewBookingsHandler(bookingService *service.BookingService) *BookingsHandler {
	return &BookingsHandler{service: bookingService}
}

// Create POST /bookings.
func (h *BookingsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	booking, err := h.service.Create(c.UserContext(), principal, service.CreateBookingInput{
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		PartnerID:       req.PartnerID,
		ShopID:          req.ShopID,
		ShopName:        req.ShopName,
		ServiceID:       req.ServiceID,
		ServiceName:     req.ServiceName,
		Date:            req.Date,
		Time:            req.Time,
		Price:           req.Price,
		OriginalPrice:   req.OriginalPrice,
		CouponDiscount:  req.CouponDiscount,
		Status:          req.Status,
		PaymentStatus:   req.PaymentStatus,
		PaymentType:     req.PaymentType,
		DepositAmount:   req.DepositAmount,
		RemainingAmount: req.RemainingAmount,
		PaymentRef:      req.PaymentRef,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewBookingResponse(booking)})
}

// List GET /bookings.
func (h *BookingsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	input, err := parseBookingListQuery(c)
	if err != nil {
		return err
	}
	bookings, err := h.service.List(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	out := make([]dto.BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, dto.NewBookingResponse(&bookings[i]))
	}
	return c.JSON(fiber.Map{
		"data": out,
		"meta": fiber.Map{"limit": input.Limit, "offset": input.Offset, "count": len(out)},
	})
}

// Get GET /bookings/:id.
func (h *BookingsHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	booking, err := h.service.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBookingResponse(booking)})
}

// History GET /bookings/:id/history.
func (h *BookingsHandler) History(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBookingHistoryResponse(entries)})
}

// Update PATCH /bookings/:id. The body carries either a target status or a
// cancellation decision in action.
func (h *BookingsHandler) Update(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	id := c.Params("id")

	var result *service.TransitionResult
	switch {
	case req.Action != nil && req.Status != nil:
		return apperrors.NewValidationError("send either status or action", nil)
	case req.Action != nil:
		event := domain.BookingEvent(strings.TrimSpace(*req.Action))
		if event != domain.BookingEventApproveCancellation && event != domain.BookingEventRejectCancellation {
			return apperrors.NewValidationError("unknown action", map[string]any{"action": "must be approve_cancellation or reject_cancellation"})
		}
		result, err = h.service.Transition(c.UserContext(), principal, service.TransitionInput{
			BookingID: id,
			Event:     event,
			Expected:  req.ExpectedStatus,
			Confirm:   req.Confirm,
			Comment:   req.Comment,
		})
	case req.Status != nil:
		result, err = h.service.UpdateStatus(c.UserContext(), principal, service.StatusUpdateInput{
			BookingID: id,
			Status:    *req.Status,
			Expected:  req.ExpectedStatus,
			Confirm:   req.Confirm,
			Comment:   req.Comment,
		})
	default:
		return apperrors.NewValidationError("status or action required", nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionResponse{
		Booking: dto.NewBookingResponse(result.Booking),
		Event:   result.Event,
		Outcome: result.Outcome,
	}})
}

func requirePrincipal(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal == nil {
		return nil, apperrors.NewUnauthenticated(nil)
	}
	return principal, nil
}

func parseBookingListQuery(c *fiber.Ctx) (service.ListBookingsInput, error) {
	input := service.ListBookingsInput{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if partnerID := strings.TrimSpace(c.Query("partner_id")); partnerID != "" {
		input.PartnerID = &partnerID
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.BookingStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return input, apperrors.NewValidationError("unknown status filter", map[string]any{"status": string(status)})
			}
			input.Statuses = append(input.Statuses, status)
		}
	}
	if from := strings.TrimSpace(c.Query("date_from")); from != "" {
		input.DateFrom = &from
	}
	if to := strings.TrimSpace(c.Query("date_to")); to != "" {
		input.DateTo = &to
	}
	return input, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}
