package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dailyverse/internal/model"
	"dailyverse/pkg/circuitbreaker"
	"dailyverse/pkg/util"
)

var errTransientPush = errors.New("transient push failure")

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact address sent in the VAPID claim
	TTL             time.Duration
	RatePerSecond   float64 // 0 disables the limiter
	ClickURL        string
	HTTPClient      webpush.HTTPClient
	Breaker         circuitbreaker.Config
}

// WebPushSender sends Web Push messages through webpush-go.
// Each push service host gets its own circuit breaker.
type WebPushSender struct {
	cfg     PushConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func NewWebPushSender(cfg PushConfig, logger *zap.Logger) *WebPushSender {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = circuitbreaker.DefaultConfig()
	}
	return &WebPushSender{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

type pushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Scripture string `json:"scripture"`
	Reference string `json:"reference"`
	Tag       string `json:"tag"`
	URL       string `json:"url,omitempty"`
}

func (s *WebPushSender) Send(ctx context.Context, sub model.PushSubscription, msg model.GeneratedMessage) Outcome {
	if err := s.limiter.Wait(ctx); err != nil {
		return Transient(fmt.Sprintf("rate limiter: %v", err))
	}

	payload, err := json.Marshal(pushPayload{
		Title:     msg.Title,
		Body:      msg.Body,
		Scripture: msg.ScriptureText,
		Reference: msg.ScriptureReference,
		Tag:       model.NotificationTypeDaily,
		URL:       s.cfg.ClickURL,
	})
	if err != nil {
		return Permanent(fmt.Sprintf("encode payload: %v", err))
	}

	var outcome Outcome
	err = s.breakerFor(sub.Endpoint).Execute(func() error {
		outcome = s.send(ctx, sub, payload)
		if outcome.Kind == TransientFailure {
			return errTransientPush
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return Transient("push service circuit open")
	}
	return outcome
}

func (s *WebPushSender) send(ctx context.Context, sub model.PushSubscription, payload []byte) Outcome {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.AuthKey,
			P256dh: sub.P256dhKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.cfg.HTTPClient,
		Subscriber:      s.cfg.Subscriber,
		TTL:             int(s.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return classifyPushError(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return classifyPushResponse(resp.StatusCode, strings.TrimSpace(string(body)))
}

// classifyPushResponse: 404/410 mean the subscription is gone; everything else that
// is not 2xx is treated as environmental and may be retried.
func classifyPushResponse(status int, body string) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Success()
	case status == http.StatusNotFound || status == http.StatusGone:
		return Permanent(fmt.Sprintf("subscription expired: status %d", status))
	default:
		detail := fmt.Sprintf("push service returned status %d", status)
		if body != "" {
			detail += ": " + body
		}
		return Transient(detail)
	}
}

// classifyPushError maps errors raised before a response was received.
// Undecodable subscription keys can never succeed, so they are permanent.
func classifyPushError(err error) Outcome {
	var b64Err base64.CorruptInputError
	if errors.As(err, &b64Err) || strings.Contains(err.Error(), "invalid public key") {
		return Permanent(fmt.Sprintf("invalid subscription keys: %v", err))
	}
	_, kind := util.IsRetryableError(err)
	return Transient(fmt.Sprintf("%s: %v", kind, err))
}

func (s *WebPushSender) breakerFor(endpoint string) *circuitbreaker.CircuitBreaker {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[host]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(s.cfg.Breaker)
		s.breakers[host] = cb
	}
	return cb
}
