// Package push delivers Web Push notifications for messages received while
// the recipient has no live connection. Delivery is fire-and-forget: failures
// are logged and subscriptions reported gone by the push service are pruned.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/model"
)

// SubscriptionStore is the slice of the durable store the sender needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Sender pushes payloads to all of an identity's registered endpoints.
// A Sender with empty VAPID keys is a no-op.
type Sender struct {
	subs           SubscriptionStore
	vapidPublic    string
	vapidPrivate   string
	subject        string
	requestTimeout time.Duration
}

func NewSender(subs SubscriptionStore, vapidPublic, vapidPrivate, subject string) *Sender {
	return &Sender{
		subs:           subs,
		vapidPublic:    vapidPublic,
		vapidPrivate:   vapidPrivate,
		subject:        subject,
		requestTimeout: 10 * time.Second,
	}
}

type notifyPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify sends a push to every subscription of userID. Errors are logged,
// never returned: push delivery must not affect fanout.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s == nil || s.vapidPublic == "" || s.vapidPrivate == "" {
		return
	}
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push list subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	raw, err := json.Marshal(notifyPayload{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push marshal payload: %v", err)
		return
	}
	for _, sub := range subs {
		s.sendOne(ctx, sub, raw)
	}
}

func (s *Sender) sendOne(ctx context.Context, sub model.PushSubscription, raw []byte) {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}
	resp, err := webpush.SendNotification(raw, target, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.vapidPublic,
		VAPIDPrivateKey: s.vapidPrivate,
		TTL:             60,
	})
	if err != nil {
		logger.Errorf("push send user=%s: %v", sub.UserID, err)
		return
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusGone, http.StatusNotFound:
		// Endpoint permanently dead: prune it.
		if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			logger.Errorf("push prune endpoint user=%s: %v", sub.UserID, err)
		} else {
			logger.Infof("push pruned gone subscription user=%s", sub.UserID)
		}
	case http.StatusCreated, http.StatusOK, http.StatusAccepted:
	default:
		logger.Errorf("push send user=%s: status %d", sub.UserID, resp.StatusCode)
	}
}
