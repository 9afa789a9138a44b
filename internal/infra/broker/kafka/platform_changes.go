package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
)

// PropertyRefresher reloads every open view of a property.
type PropertyRefresher interface {
	RefreshProperty(ctx context.Context, propertyID string) error
}

// Inbox reports whether a message id was consumed before and records it otherwise.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// PlatformChangeHandler refreshes open calendars when the platform announces that a property's
// calendar changed, e.g. a new booking arrived. Both bare {"propertyId": ...} payloads and
// CloudEvents envelopes carrying it in data are accepted.
type PlatformChangeHandler struct {
	Refresher PropertyRefresher
	Inbox     Inbox
	Logger    *slog.Logger
}

type platformChange struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	PropertyID string          `json:"propertyId"`
	Data       json.RawMessage `json:"data"`
}

func (h PlatformChangeHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	change, err := decodePlatformChange(msg.Value)
	if err != nil || change.PropertyID == "" {
		logger.Warn("dropping malformed platform change", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	id := messageID(msg, change)
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, id)
		if err != nil {
			return fmt.Errorf("kafka: inbox: %w", err)
		}
		if seen {
			logger.Debug("skipping duplicate platform change", "event_id", id)
			return nil
		}
	}
	if h.Refresher == nil {
		return nil
	}
	if err := h.Refresher.RefreshProperty(ctx, change.PropertyID); err != nil {
		logger.Warn("refresh after platform change failed", "property_id", change.PropertyID, "error", err)
		return nil
	}
	logger.Debug("platform change applied", "property_id", change.PropertyID, "event_id", id, "type", change.Type)
	return nil
}

func decodePlatformChange(raw []byte) (platformChange, error) {
	var change platformChange
	if err := json.Unmarshal(raw, &change); err != nil {
		return change, err
	}
	if change.PropertyID == "" && len(change.Data) > 0 {
		var data struct {
			PropertyID string `json:"propertyId"`
		}
		if err := json.Unmarshal(change.Data, &data); err != nil {
			return change, err
		}
		change.PropertyID = data.PropertyID
	}
	change.PropertyID = strings.TrimSpace(change.PropertyID)
	return change, nil
}

func messageID(msg *sarama.ConsumerMessage, change platformChange) string {
	for _, h := range msg.Headers {
		if h != nil && strings.EqualFold(string(h.Key), "ce_id") && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	if change.ID != "" {
		return change.ID
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
