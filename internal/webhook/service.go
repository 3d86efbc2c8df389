package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Fanvue-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrUnknownCreator marks deliveries for creators this service does not
// track. They are stored with the error and acknowledged.
var ErrUnknownCreator = errors.New("unknown creator")

type Store interface {
	models.WebhookRepository
	models.CreatorRepository
	models.TransactionRepository
}

// Outcome tells the HTTP layer what happened to a delivery.
type Outcome struct {
	Kind      string `json:"kind"`
	EventKey  string `json:"event_key"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

// Service records deliveries once and applies their effect on local data.
type Service struct {
	logger *logger.Logger
	store  Store
	secret []byte

	now func() time.Time
}

func NewService(store Store, secret string, logger *logger.Logger) *Service {
	s := &Service{
		logger: logger,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

// Verify checks the signature when a secret is configured.
func (s *Service) Verify(body []byte, signature string) error {
	if s.secret == nil {
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Handle verifies, classifies and applies one delivery. Repeated deliveries
// of the same event are acknowledged without effect. Events for unknown
// creators are stored with the error; any other apply failure removes the
// record and is returned so the upstream retries the delivery.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*Outcome, error) {
	if err := s.Verify(body, signature); err != nil {
		return nil, err
	}
	event, err := Classify(body)
	if err != nil {
		return nil, err
	}

	key := EventKey(event, body)
	outcome := &Outcome{Kind: event.Kind(), EventKey: key}

	record := &models.WebhookEvent{
		EventKey:    key,
		EventType:   event.Kind(),
		CreatorUUID: event.CreatorUUID(),
		Payload:     datatypes.JSON(body),
	}
	created, err := s.store.RecordWebhookEvent(ctx, record)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Debug("Duplicate webhook ignored", "event_key", key, "kind", event.Kind())
		outcome.Duplicate = true
		return outcome, nil
	}

	errMsg := ""
	if applyErr := s.apply(ctx, event, key); applyErr != nil {
		if !errors.Is(applyErr, ErrUnknownCreator) {
			// Drop the record so the upstream redelivery is applied.
			s.logger.Error("Webhook apply failed, awaiting redelivery", "event_key", key, "kind", event.Kind(), "error", applyErr)
			if err := s.store.ForgetWebhookEvent(ctx, record.ID); err != nil {
				s.logger.Error("Failed to forget webhook event", "event_key", key, "error", err)
			}
			return nil, fmt.Errorf("failed to apply webhook %s: %w", key, applyErr)
		}
		s.logger.Warn("Webhook not applied", "event_key", key, "kind", event.Kind(), "error", applyErr)
		errMsg = applyErr.Error()
		outcome.Error = errMsg
	}
	if err := s.store.MarkWebhookProcessed(ctx, record.ID, s.now(), errMsg); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// EventKey is the upstream event id or, without one, the body digest.
func EventKey(event Event, body []byte) string {
	if id := event.ID(); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (s *Service) apply(ctx context.Context, event Event, key string) error {
	switch e := event.(type) {
	case Payment:
		creator, err := s.creator(ctx, e.CreatorUUID())
		if err != nil {
			return err
		}
		upstreamID := e.TransactionUUID
		if upstreamID == "" {
			upstreamID = key
		}
		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = s.now()
		}
		tx := models.Transaction{
			UpstreamID:         upstreamID,
			AgencyID:           creator.AgencyID,
			ModelID:            &creator.ID,
			CounterpartyHandle: creator.Handle,
			FanUUID:            e.FanUUID,
			Amount:             e.Amount,
			Currency:           e.Currency,
			Category:           e.Kind(),
			OccurredAt:         occurred,
		}
		if err := s.store.UpsertTransactions(ctx, []models.Transaction{tx}); err != nil {
			return err
		}
		_, err = s.store.RecomputeRevenue(ctx, creator.ID)
		return err
	case NewFollower, NewSubscriber:
		creator, err := s.creator(ctx, e.CreatorUUID())
		if err != nil {
			return err
		}
		return s.store.InvalidateCreatorStats(ctx, creator.ID)
	case MessageReceived:
		s.logger.Debug("Message received", "creator_uuid", e.CreatorUUID(), "fan_uuid", e.FanUUID)
		return nil
	default:
		return nil
	}
}

func (s *Service) creator(ctx context.Context, fanvueUUID string) (*models.Creator, error) {
	if fanvueUUID == "" {
		return nil, fmt.Errorf("%w: event has no creator", ErrUnknownCreator)
	}
	creator, err := s.store.GetCreatorByFanvueUUID(ctx, fanvueUUID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w %s", ErrUnknownCreator, fanvueUUID)
	}
	if err != nil {
		return nil, err
	}
	return creator, nil
}
