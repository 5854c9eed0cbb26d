package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/internal/server/ws"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

// MessageToken is the placeholder substituted into a subscription's
// format template.
const MessageToken = "{message}"

// Format expands a subscription template with event content. An empty
// template passes the content through raw; empty content yields the
// raw template; both empty means there is nothing to send.
func Format(template, content string) string {
	if template == "" {
		return content
	}
	if content == "" {
		return template
	}
	return strings.ReplaceAll(template, MessageToken, content)
}

// PublishRequest carries one event into the notification pipeline.
type PublishRequest struct {
	Code            string          `json:"code"`
	TriggeringEvent string          `json:"triggering_event"`
	Message         string          `json:"message,omitempty"`
	Embed           json.RawMessage `json:"embed,omitempty"`
}

// NotifyService fans events out to live sessions. An event is resolved
// against its registered code, expanded per subscription target, and
// broadcast through the connection registry.
type NotifyService struct {
	Store    store.Store
	Registry *ws.Registry
}

// Publish resolves the event's code, renders one payload item per
// subscription target, marks the code used, and broadcasts. Targets
// with nothing to send (no message after formatting and no embed) are
// skipped. Returns the number of sessions reached.
func (s *NotifyService) Publish(ctx context.Context, req PublishRequest) (int, error) {
	log := slogx.FromContext(ctx)

	if req.Code == "" {
		return 0, apperr.Validation("code is required")
	}
	if req.TriggeringEvent == "" {
		return 0, apperr.Validation("triggering_event is required")
	}

	if _, err := s.Store.NotificationCodes().GetCode(ctx, req.Code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.NotFound("unknown notification code")
		}
		return 0, apperr.Wrap(apperr.KindInternal, "code lookup failed", err)
	}

	targets, err := s.Store.NotificationTargets().FindTargets(ctx, store.TargetFilter{Code: &req.Code})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "target lookup failed", err)
	}

	var data []domain.NotificationData
	for _, target := range targets {
		message := Format(target.Format, req.Message)
		if message == "" && len(req.Embed) == 0 {
			continue
		}
		data = append(data, domain.NotificationData{
			TriggeringEvent: req.TriggeringEvent,
			ChannelID:       target.ChannelID,
			GuildID:         target.GuildID,
			Embed:           req.Embed,
			Message:         message,
		})
	}

	if err := s.Store.NotificationCodes().TouchCode(ctx, req.Code); err != nil {
		log.Error("failed to mark notification code used", "code", req.Code, "error", err)
	}

	if len(data) == 0 {
		return 0, nil
	}

	payload := domain.NotificationPayload{
		Code:      req.Code,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	reached, failed := s.Registry.Broadcast(payload)
	if len(failed) > 0 {
		log.Warn("notification skipped stale sessions",
			"code", req.Code,
			"reached", reached,
			"dropped", len(failed),
		)
	}
	return reached, nil
}
