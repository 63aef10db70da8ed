package trigger

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"datadeploy/internal/logger"

	"github.com/google/go-github/v81/github"
)

// WebhookHandler turns GitHub push deliveries for one branch into push events.
type WebhookHandler struct {
	secret []byte
	ref    string
	submit func(Event) error
	now    func() time.Time
}

// NewWebhookHandler validates X-Hub-Signature-256 with secret; an empty secret
// accepts unsigned deliveries.
func NewWebhookHandler(secret []byte, branch string, submit func(Event) error) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		ref:    "refs/heads/" + branch,
		submit: submit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		status := http.StatusBadRequest
		if len(h.secret) > 0 {
			status = http.StatusUnauthorized
		}
		logger.WarnKV(ctx, "rejected webhook delivery", "error", err)
		http.Error(w, "invalid payload", status)
		return
	}

	eventType := github.WebHookType(r)
	delivery := github.DeliveryID(r)
	switch eventType {
	case "ping":
		respond(w, http.StatusOK, "pong")
		return
	case "push":
	default:
		respond(w, http.StatusAccepted, fmt.Sprintf("ignored event %q", eventType))
		return
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		http.Error(w, "cannot parse push event", http.StatusBadRequest)
		return
	}
	push, ok := parsed.(*github.PushEvent)
	if !ok {
		http.Error(w, "unexpected event payload", http.StatusBadRequest)
		return
	}
	if push.GetRef() != h.ref {
		respond(w, http.StatusAccepted, fmt.Sprintf("ignored ref %s", push.GetRef()))
		return
	}
	if push.GetDeleted() {
		respond(w, http.StatusAccepted, "ignored branch deletion")
		return
	}

	ev := Event{
		Kind:       KindPush,
		Ref:        push.GetRef(),
		Revision:   push.GetAfter(),
		Delivery:   delivery,
		ReceivedAt: h.now(),
	}
	if err := h.submit(ev); err != nil {
		if errors.Is(err, ErrQueueFull) {
			logger.WarnKV(ctx, "trigger queue full; dropping push", "delivery", delivery)
			http.Error(w, "queue full", http.StatusServiceUnavailable)
			return
		}
		logger.ErrorKV(ctx, "cannot queue push", "delivery", delivery, "error", err)
		http.Error(w, "cannot queue run", http.StatusInternalServerError)
		return
	}
	logger.InfoKV(ctx, "push queued", "delivery", delivery, "revision", ev.Revision)
	respond(w, http.StatusAccepted, "queued")
}

func respond(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, msg)
}
