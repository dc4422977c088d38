package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

// Subscription is one registered event subscription at the events API.
type Subscription struct {
	ID           int    `json:"id"`
	EndPoint     string `json:"endPoint"`
	SourceFilter string `json:"sourceFilter"`
	TypeFilter   string `json:"typeFilter"`
	Created      string `json:"created"`
}

// SubscriptionClient registers this service's webhook endpoint at the
// events API, one subscription per workflow application.
type SubscriptionClient struct {
	httpc      *http.Client
	tokens     altinn.TokenSource
	eventsURL  string
	endpoint   string
	appBaseURL string
	owner      string
	log        *logger.Logger
}

func NewSubscriptionClient(cfg config.EventsAPIConfig, api config.PlatformAPIConfig, tokens altinn.TokenSource, log *logger.Logger) *SubscriptionClient {
	return &SubscriptionClient{
		httpc:      &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		eventsURL:  strings.TrimRight(cfg.GetAltinnEventsURL(), "/"),
		endpoint:   cfg.GetWebhookEndpoint(),
		appBaseURL: strings.TrimRight(api.GetAltinnAppBaseURL(), "/"),
		owner:      api.GetAltinnOwnerOrg(),
		log:        log,
	}
}

// Subscribe registers the webhook for process-completed events from one
// application. Registering the same filter twice is safe; the events API
// treats it as the existing subscription.
func (c *SubscriptionClient) Subscribe(ctx context.Context, appName string) (Subscription, error) {
	if c.endpoint == "" {
		return Subscription{}, apperr.Validation("webhook endpoint is not configured").WithOp("webhook.Subscribe")
	}

	payload := map[string]string{
		"endPoint":     c.endpoint,
		"sourceFilter": fmt.Sprintf("%s/%s/%s", c.appBaseURL, c.owner, appName),
		"typeFilter":   EventProcessCompleted,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Subscription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return Subscription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Subscription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Subscription{}, apperr.Wrap(apperr.KindTransient, "events api unreachable", err).WithOp("webhook.Subscribe")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Subscription{}, apperr.Wrap(apperr.KindTransient, "failed to read events api response", err).WithOp("webhook.Subscribe")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		kind := apperr.KindBadRequest
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			kind = apperr.KindUnauthorized
		case resp.StatusCode == http.StatusForbidden:
			kind = apperr.KindForbidden
		case resp.StatusCode >= 500:
			kind = apperr.KindTransient
		}
		return Subscription{}, apperr.New(kind, fmt.Sprintf("subscription request rejected for %s", appName)).
			WithOp("webhook.Subscribe").
			WithStatus(resp.StatusCode).
			WithDetails(strings.TrimSpace(string(data)))
	}

	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return Subscription{}, apperr.Wrap(apperr.KindDecode, "malformed subscription response", err).WithOp("webhook.Subscribe")
	}

	c.log.Info("event subscription registered", "app", appName, "subscription_id", sub.ID, "endpoint", c.endpoint)
	return sub, nil
}
