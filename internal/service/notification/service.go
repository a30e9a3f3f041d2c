// Package notification implements the request-driven operations of the
// service: posting custom notifications, the single-use in-app fetch, mail
// blasts and device token management.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/personaldataservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
)

// ErrForbidden is returned when a participant requests a notification that
// belongs to someone else.
var ErrForbidden = errors.New("notification belongs to another participant")

// ErrContentGone is returned when the object a notification refers to can no
// longer produce content, e.g. a reminder whose question set became empty.
var ErrContentGone = errors.New("notification content no longer available")

type scheduleRepository interface {
	CreateCustom(ctx context.Context, e model.ScheduleEntry) (int64, error)
	ByID(ctx context.Context, id int64) (model.ScheduleEntry, error)
	Delete(ctx context.Context, id int64) error
}

type tokenRepository interface {
	TokensForRecipient(ctx context.Context, pseudonym string) ([]model.DeviceToken, error)
	Upsert(ctx context.Context, t model.DeviceToken) error
	Remove(ctx context.Context, token string) error
}

type instanceSource interface {
	Instance(ctx context.Context, instanceID int) (model.QuestionnaireInstance, error)
}

type labResultSource interface {
	ByID(ctx context.Context, id string) (model.LabResult, error)
}

type userDirectory interface {
	ProbandExists(ctx context.Context, pseudonym string) (bool, error)
	PseudonymsForStudy(ctx context.Context, study string) ([]string, error)
}

type emailResolver interface {
	Email(ctx context.Context, pseudonym string) (string, error)
}

type emailSender interface {
	Send(to string, msg email.Message) error
}

// Service implements the HTTP-facing notification operations.
type Service struct {
	schedules       scheduleRepository
	tokens          tokenRepository
	instances       instanceSource
	results         labResultSource
	users           userDirectory
	emails          emailResolver
	mailer          emailSender
	reminderContent content.Strategy[model.QuestionnaireInstance]
	sampleContent   content.Strategy[model.LabResult]
	customContent   content.Strategy[model.ScheduleEntry]
}

// NewService creates the notification service.
func NewService(
	schedules scheduleRepository,
	tokens tokenRepository,
	instances instanceSource,
	results labResultSource,
	users userDirectory,
	emails emailResolver,
	mailer emailSender,
	reminderContent content.Strategy[model.QuestionnaireInstance],
	sampleContent content.Strategy[model.LabResult],
	customContent content.Strategy[model.ScheduleEntry],
) *Service {
	return &Service{
		schedules:       schedules,
		tokens:          tokens,
		instances:       instances,
		results:         results,
		users:           users,
		emails:          emails,
		mailer:          mailer,
		reminderContent: reminderContent,
		sampleContent:   sampleContent,
		customContent:   customContent,
	}
}

// CreateResult reports which recipients got a scheduled notification and
// which could not be reached at all.
type CreateResult struct {
	Scheduled []string `json:"scheduled"`
	Failed    []string `json:"failed"`
}

// CreateCustomNotification schedules a custom notification for each
// recipient. Recipients without a registered device are retried in an hour if
// they exist at all; unknown pseudonyms are reported as failed. Only
// recipients within the requester's studies are accepted.
func (s *Service) CreateCustomNotification(
	ctx context.Context,
	recipients []string,
	requesterStudies []string,
	title, body string,
	sendOn time.Time,
) (CreateResult, error) {
	allowed := make(map[string]bool, len(requesterStudies))
	for _, study := range requesterStudies {
		allowed[study] = true
	}

	var result CreateResult
	for _, recipient := range recipients {
		ok, err := s.scheduleFor(ctx, recipient, allowed, title, body, sendOn)
		if err != nil {
			return CreateResult{}, err
		}
		if ok {
			result.Scheduled = append(result.Scheduled, recipient)
		} else {
			result.Failed = append(result.Failed, recipient)
		}
	}

	return result, nil
}

func (s *Service) scheduleFor(
	ctx context.Context,
	recipient string,
	allowedStudies map[string]bool,
	title, body string,
	sendOn time.Time,
) (bool, error) {
	tokens, err := s.tokens.TokensForRecipient(ctx, recipient)
	if err != nil {
		return false, fmt.Errorf("load device tokens: %w", err)
	}

	inStudies := false
	for _, t := range tokens {
		if allowedStudies[t.Study] {
			inStudies = true
			break
		}
	}

	if len(tokens) == 0 || !inStudies {
		exists, err := s.users.ProbandExists(ctx, recipient)
		if err != nil {
			return false, fmt.Errorf("check participant: %w", err)
		}
		if !exists {
			return false, nil
		}
		// The participant exists but has no usable device yet. Schedule
		// anyway, delivery retries hourly until a device shows up.
	}

	entry := model.ScheduleEntry{
		Recipient:   recipient,
		SendOn:      &sendOn,
		Type:        model.TypeCustom,
		ReferenceID: uuid.New().String(),
		Title:       &title,
		Body:        &body,
	}

	if _, err := s.schedules.CreateCustom(ctx, entry); err != nil {
		return false, fmt.Errorf("create schedule entry: %w", err)
	}

	return true, nil
}

// Notification is the content handed to the app when it fetches a delivered
// notification.
type Notification struct {
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Type        model.ScheduleType `json:"notification_type"`
	ReferenceID string             `json:"reference_id"`
}

// GetAndConsume returns the content of a delivered notification and removes
// the entry. Each notification can be fetched exactly once, and only by the
// participant it was sent to.
func (s *Service) GetAndConsume(ctx context.Context, id int64, requester string) (Notification, error) {
	entry, err := s.schedules.ByID(ctx, id)
	if err != nil {
		return Notification{}, err
	}

	if entry.Recipient != requester {
		return Notification{}, ErrForbidden
	}

	n := Notification{Type: entry.Type, ReferenceID: entry.ReferenceID}

	switch entry.Type {
	case model.TypeReminder:
		instanceID, err := strconv.Atoi(entry.ReferenceID)
		if err != nil {
			return Notification{}, fmt.Errorf("invalid instance reference %q: %w", entry.ReferenceID, err)
		}
		instance, err := s.instances.Instance(ctx, instanceID)
		if err != nil {
			return Notification{}, fmt.Errorf("fetch instance: %w", err)
		}
		if len(instance.Questionnaire.Questions) == 0 {
			return Notification{}, ErrContentGone
		}
		push := s.reminderContent.Push(instance)
		n.Title, n.Body = push.Title, push.Body
	case model.TypeSample:
		result, err := s.results.ByID(ctx, entry.ReferenceID)
		if err != nil {
			return Notification{}, fmt.Errorf("fetch lab result: %w", err)
		}
		push := s.sampleContent.Push(result)
		n.Title, n.Body = push.Title, push.Body
	default:
		push := s.customContent.Push(entry)
		n.Title, n.Body = push.Title, push.Body
	}

	if err := s.schedules.Delete(ctx, id); err != nil {
		zlog.Logger.Error().Err(err).Int64("schedule_id", id).Msg("failed to consume notification")
	}

	return n, nil
}

// EmailBlast mails every recipient that has an address on file and returns
// the pseudonyms that were reached. Recipients outside the requester's
// studies are skipped.
func (s *Service) EmailBlast(ctx context.Context, recipients, requesterStudies []string, subject, body string) ([]string, error) {
	accessible := make(map[string]bool)
	for _, study := range requesterStudies {
		pseudonyms, err := s.users.PseudonymsForStudy(ctx, study)
		if err != nil {
			return nil, fmt.Errorf("load study participants: %w", err)
		}
		for _, p := range pseudonyms {
			accessible[p] = true
		}
	}

	title, text := subject, body
	payload := s.customContent.Email(model.ScheduleEntry{Title: &title, Body: &text})

	var mailed []string
	for _, recipient := range recipients {
		if !accessible[recipient] {
			continue
		}

		address, err := s.emails.Email(ctx, recipient)
		if errors.Is(err, personaldataservice.ErrNoEmail) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve mail address: %w", err)
		}

		if err := s.mailer.Send(address, email.Message{Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML}); err != nil {
			zlog.Logger.Error().Err(err).Str("recipient", recipient).Msg("failed to send blast mail")
			continue
		}

		mailed = append(mailed, recipient)
	}

	return mailed, nil
}

// RegisterToken stores a device token for the participant.
func (s *Service) RegisterToken(ctx context.Context, t model.DeviceToken) error {
	return s.tokens.Upsert(ctx, t)
}

// RemoveToken deletes a device token, e.g. on logout.
func (s *Service) RemoveToken(ctx context.Context, token string) error {
	return s.tokens.Remove(ctx, token)
}
