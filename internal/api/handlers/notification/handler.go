// Package notification contains the HTTP handlers of the service.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/api/dto"
	"github.com/hzi-braunschweig/pia-notification-service/internal/api/respond"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/questionnaireservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/config"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/internal/repository/schedule"
	svc "github.com/hzi-braunschweig/pia-notification-service/internal/service/notification"
)

// notificationService defines the interface that the Handler depends on.
type notificationService interface {
	CreateCustomNotification(ctx context.Context, recipients, requesterStudies []string, title, body string, sendOn time.Time) (svc.CreateResult, error)
	GetAndConsume(ctx context.Context, id int64, requester string) (svc.Notification, error)
	EmailBlast(ctx context.Context, recipients, requesterStudies []string, subject, body string) ([]string, error)
	RegisterToken(ctx context.Context, t model.DeviceToken) error
	RemoveToken(ctx context.Context, token string) error
}

// Handler handles HTTP requests related to notifications.
//
// The API gateway authenticates requests and passes the caller's identity in
// the X-User header and their study assignments in X-Studies.
type Handler struct {
	service   notificationService
	validator *validator.Validate
	cfg       *config.Config
}

// NewHandler creates a new Handler instance.
func NewHandler(s notificationService, v *validator.Validate, cfg *config.Config) *Handler {
	return &Handler{service: s, validator: v, cfg: cfg}
}

// Create handles HTTP POST requests to schedule a custom notification.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.CreateNotificationRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	sendOn := time.Now().Add(time.Hour)
	if req.SendOn != "" {
		loc, err := time.LoadLocation(h.cfg.Notification.Timezone)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to load notification timezone")
		}

		sendOn, err = time.ParseInLocation(time.DateTime, req.SendOn, loc)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to parse send_on time")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid send_on format"))
			return
		}
	}

	result, err := h.service.CreateCustomNotification(
		c.Request.Context(),
		req.Recipients,
		requesterStudies(c),
		req.Title, req.Body,
		sendOn,
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to create custom notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, result)
}

// Get handles HTTP GET requests for the single-use in-app fetch of a
// delivered notification.
func (h *Handler) Get(c *ginext.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return
	}

	n, err := h.service.GetAndConsume(c.Request.Context(), id, requester(c))
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) ||
			errors.Is(err, questionnaireservice.ErrInstanceNotFound) ||
			errors.Is(err, svc.ErrContentGone) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}
		if errors.Is(err, svc.ErrForbidden) {
			respond.Fail(c.Writer, http.StatusForbidden, fmt.Errorf("notification belongs to another participant"))
			return
		}

		zlog.Logger.Error().Err(err).Int64("id", id).Msg("failed to get notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, n)
}

// Email handles HTTP POST requests for a direct mail blast.
func (h *Handler) Email(c *ginext.Context) {
	var req dto.EmailRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	mailed, err := h.service.EmailBlast(c.Request.Context(), req.Recipients, requesterStudies(c), req.Subject, req.Body)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to send mail blast")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	if len(mailed) == 0 {
		respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("no recipient has a mail address"))
		return
	}

	respond.OK(c.Writer, mailed)
}

// RegisterToken handles HTTP POST requests to register a device token for
// the calling participant.
func (h *Handler) RegisterToken(c *ginext.Context) {
	var req dto.TokenRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	t := model.DeviceToken{
		Token:     req.Token,
		Pseudonym: requester(c),
		Study:     req.Study,
	}

	if err := h.service.RegisterToken(c.Request.Context(), t); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to register device token")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, req.Token)
}

// RemoveToken handles HTTP DELETE requests to remove a device token.
func (h *Handler) RemoveToken(c *ginext.Context) {
	token := c.Param("token")
	if token == "" {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing token"))
		return
	}

	if err := h.service.RemoveToken(c.Request.Context(), token); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to remove device token")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.NoContent(c.Writer)
}

func requester(c *ginext.Context) string {
	return c.Request.Header.Get("X-User")
}

func requesterStudies(c *ginext.Context) []string {
	header := c.Request.Header.Get("X-Studies")
	if header == "" {
		return nil
	}

	parts := strings.Split(header, ",")
	studies := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			studies = append(studies, s)
		}
	}
	return studies
}
