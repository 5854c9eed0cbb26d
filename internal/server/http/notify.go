package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/httpx"
)

const (
	// ScopeEventsManage guards code registration and subscription
	// management.
	ScopeEventsManage = "events:manage"

	// ScopeEventsPublish guards event publication.
	ScopeEventsPublish = "events:publish"
)

// NotifyCodesHandler manages the notification code catalogue.
type NotifyCodesHandler struct {
	Gate  *service.AuthorizeService
	Store store.Store
}

type registerCodeRequest struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

func (h *NotifyCodesHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsManage); err != nil {
		apperr.Write(w, err)
		return
	}

	var req registerCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	if req.Code == "" {
		apperr.Write(w, apperr.Validation("code is required"))
		return
	}

	if _, err := h.Store.NotificationCodes().GetCode(ctx, req.Code); err == nil {
		apperr.Write(w, apperr.Conflict("code already registered"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "code lookup failed", err))
		return
	}

	if err := h.Store.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{
		Code:        req.Code,
		Description: req.Description,
	}); err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "code registration failed", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"code": req.Code})
}

func (h *NotifyCodesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsManage); err != nil {
		apperr.Write(w, err)
		return
	}

	codes, err := h.Store.NotificationCodes().ListCodes(ctx)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "code listing failed", err))
		return
	}
	if codes == nil {
		codes = []domain.NotificationCode{}
	}

	httpx.WriteJSON(w, http.StatusOK, codes)
}

func (h *NotifyCodesHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsManage); err != nil {
		apperr.Write(w, err)
		return
	}

	code := r.PathValue("code")
	if err := h.Store.NotificationCodes().UnregisterCode(ctx, code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperr.Write(w, apperr.NotFound("unknown notification code"))
			return
		}
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "code removal failed", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

// NotifySubscriptionsHandler manages which channels receive a code's
// events.
type NotifySubscriptionsHandler struct {
	Gate  *service.AuthorizeService
	Store store.Store
}

type subscriptionRequest struct {
	Code      string `json:"code"`
	ChannelID int64  `json:"channel_id"`
	GuildID   int64  `json:"guild_id"`
	Format    string `json:"format,omitempty"`
}

func (h *NotifySubscriptionsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsManage); err != nil {
		apperr.Write(w, err)
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	if req.Code == "" || req.ChannelID == 0 {
		apperr.Write(w, apperr.Validation("code and channel_id are required"))
		return
	}

	if _, err := h.Store.NotificationCodes().GetCode(ctx, req.Code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperr.Write(w, apperr.NotFound("unknown notification code"))
			return
		}
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "code lookup failed", err))
		return
	}

	target, err := h.Store.NotificationTargets().Subscribe(ctx, domain.NotificationTarget{
		Code:      req.Code,
		ChannelID: req.ChannelID,
		GuildID:   req.GuildID,
		Format:    req.Format,
	})
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindConflict, "subscription already exists", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, target)
}

func (h *NotifySubscriptionsHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsManage); err != nil {
		apperr.Write(w, err)
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}

	if err := h.Store.NotificationTargets().Unsubscribe(ctx, req.Code, req.ChannelID, req.GuildID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperr.Write(w, apperr.NotFound("no such subscription"))
			return
		}
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "unsubscribe failed", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// PublishHandler serves POST /notify/publish, pushing one event
// through the notification pipeline to live sessions.
type PublishHandler struct {
	Gate   *service.AuthorizeService
	Notify *service.NotifyService
}

type publishResponse struct {
	Delivered int `json:"delivered"`
}

func (h *PublishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, ScopeEventsPublish); err != nil {
		apperr.Write(w, err)
		return
	}

	var req service.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}

	delivered, err := h.Notify.Publish(ctx, req)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, publishResponse{Delivered: delivered})
}
