// Package webhook classifies and applies Fanvue webhook deliveries.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedPayload is returned for bodies that are not a JSON object.
var ErrMalformedPayload = errors.New("malformed webhook payload")

const (
	KindMessageReceived = "message.received"
	KindNewFollower     = "follower.new"
	KindNewSubscriber   = "subscriber.new"
	KindPurchase        = "purchase"
	KindTip             = "tip"
	KindUnknown         = "unknown"
)

// Event is one classified delivery. The set of implementations is closed.
type Event interface {
	Kind() string
	// ID is the upstream event id, empty when the payload carries none.
	ID() string
	CreatorUUID() string
	event()
}

type base struct {
	EventID string
	Creator string
}

func (b base) ID() string          { return b.EventID }
func (b base) CreatorUUID() string { return b.Creator }
func (base) event()                {}

type MessageReceived struct {
	base
	FanUUID     string
	MessageUUID string
	Text        string
}

type NewFollower struct {
	base
	FanUUID string
}

type NewSubscriber struct {
	base
	FanUUID string
}

// Payment covers purchases and tips. Amount is in cents.
type Payment struct {
	base
	Tip             bool
	FanUUID         string
	TransactionUUID string
	Amount          int64
	Currency        string
	OccurredAt      time.Time
}

// Unknown is an event type this service does not act on.
type Unknown struct {
	base
	Type string
}

func (MessageReceived) Kind() string { return KindMessageReceived }
func (NewFollower) Kind() string     { return KindNewFollower }
func (NewSubscriber) Kind() string   { return KindNewSubscriber }
func (Unknown) Kind() string         { return KindUnknown }

func (p Payment) Kind() string {
	if p.Tip {
		return KindTip
	}
	return KindPurchase
}

type party struct {
	UUID string `json:"uuid"`
}

// data is the union of the fields every payload shape may carry.
type data struct {
	ID          string          `json:"id"`
	EventID     string          `json:"eventId"`
	UUID        string          `json:"uuid"`
	CreatorUUID string          `json:"creatorUuid"`
	Creator     *party          `json:"creator"`
	Recipient   *party          `json:"recipient"`
	FanUUID     string          `json:"fanUuid"`
	User        *party          `json:"user"`
	Sender      *party          `json:"sender"`
	Fan         *party          `json:"fan"`
	MessageUUID string          `json:"messageUuid"`
	Text        string          `json:"text"`
	Amount      json.Number     `json:"amount"`
	Price       json.Number     `json:"price"`
	Currency    string          `json:"currency"`
	CreatedAt   string          `json:"createdAt"`
	Timestamp   string          `json:"timestamp"`
	Message     json.RawMessage `json:"message"`
}

type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// legacyKeys maps the top-level key of old-style payloads to an event kind.
var legacyKeys = []struct {
	key  string
	kind string
}{
	{"message", KindMessageReceived},
	{"follower", KindNewFollower},
	{"subscriber", KindNewSubscriber},
	{"purchase", KindPurchase},
	{"tip", KindTip},
}

// Classify recognises the three delivery shapes: {type, data},
// {event, payload} and the legacy object keyed by event name.
func Classify(body []byte) (Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrMalformedPayload
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch {
	case env.Type != "":
		return build(env.Type, env.ID, env.Data)
	case env.Event != "":
		return build(env.Event, env.ID, env.Payload)
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	for _, lk := range legacyKeys {
		if raw, ok := keyed[lk.key]; ok {
			return build(lk.kind, "", raw)
		}
	}
	return Unknown{}, nil
}

func build(eventType, id string, raw json.RawMessage) (Event, error) {
	var d data
	if len(raw) > 0 && string(raw) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	b := base{EventID: firstNonEmpty(id, d.EventID, d.ID), Creator: firstNonEmpty(d.CreatorUUID, uuidOf(d.Creator), uuidOf(d.Recipient))}
	fan := firstNonEmpty(d.FanUUID, uuidOf(d.Fan), uuidOf(d.User), uuidOf(d.Sender))

	switch normalizeType(eventType) {
	case KindMessageReceived:
		text := d.Text
		if text == "" && len(d.Message) > 0 {
			var nested struct {
				UUID string `json:"uuid"`
				Text string `json:"text"`
			}
			if json.Unmarshal(d.Message, &nested) == nil {
				text = nested.Text
				d.MessageUUID = firstNonEmpty(d.MessageUUID, nested.UUID)
			}
		}
		return MessageReceived{base: b, FanUUID: fan, MessageUUID: firstNonEmpty(d.MessageUUID, d.UUID), Text: text}, nil
	case KindNewFollower:
		return NewFollower{base: b, FanUUID: fan}, nil
	case KindNewSubscriber:
		return NewSubscriber{base: b, FanUUID: fan}, nil
	case KindPurchase, KindTip:
		amount, err := cents(firstNonEmpty(d.Amount.String(), d.Price.String()))
		if err != nil {
			return nil, err
		}
		return Payment{
			base:            b,
			Tip:             normalizeType(eventType) == KindTip,
			FanUUID:         fan,
			TransactionUUID: firstNonEmpty(d.UUID, d.ID),
			Amount:          amount,
			Currency:        strings.ToUpper(d.Currency),
			OccurredAt:      parseTime(firstNonEmpty(d.CreatedAt, d.Timestamp)),
		}, nil
	default:
		return Unknown{base: b, Type: eventType}, nil
	}
}

// normalizeType folds the spellings seen across payload versions.
func normalizeType(t string) string {
	switch strings.ToLower(strings.NewReplacer("_", ".", "-", ".").Replace(t)) {
	case "message.received", "message.created", "message", "new.message":
		return KindMessageReceived
	case "follower.new", "new.follower", "follower", "follow":
		return KindNewFollower
	case "subscriber.new", "new.subscriber", "subscriber", "subscription.created":
		return KindNewSubscriber
	case "purchase", "purchase.created", "post.purchased", "media.purchased":
		return KindPurchase
	case "tip", "tip.received", "tip.created":
		return KindTip
	}
	return t
}

// cents accepts integer cents. Amounts are never sent as floats upstream.
func cents(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := json.Number(v).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not integer cents", ErrMalformedPayload, v)
	}
	return n, nil
}

func parseTime(v string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func uuidOf(p *party) string {
	if p == nil {
		return ""
	}
	return p.UUID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
