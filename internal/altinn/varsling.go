package altinn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

// Shipment statuses reported by the varsling API.
const (
	StatusOrderCompleted = "Order_Completed"
	StatusEmailDelivered = "Email_Delivered"
)

// sendTimeMargin is how far forward a requested send time in the past is
// pushed, so the order is not rejected for being stale.
const sendTimeMargin = 5 * time.Minute

// VarslingClient talks to the notification order API.
type VarslingClient struct {
	httpc  *http.Client
	tokens TokenSource
	base   string
	log    *logger.Logger
	now    func() time.Time
}

// NewVarslingClient creates a notification client.
func NewVarslingClient(cfg config.NotifyConfig, tokens TokenSource, log *logger.Logger) *VarslingClient {
	return &VarslingClient{
		httpc:  &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		base:   cfg.GetVarslingBaseURL(),
		log:    log,
		now:    time.Now,
	}
}

// SendParams describes one notification order.
type SendParams struct {
	Recipient        string
	Subject          string
	Body             string
	SendTime         string // canonical timestamp or bare date
	SendersReference string
}

// Shipment is the accepted order.
type Shipment struct {
	ID            string
	IdempotencyID string
	SendTime      string
	Recipient     string
}

// ShipmentStatus is the polled delivery state of one shipment.
type ShipmentStatus struct {
	ShipmentID string            `json:"shipmentId"`
	Status     string            `json:"status"`
	Recipients []RecipientStatus `json:"recipients"`
}

// RecipientStatus is the per-recipient delivery state.
type RecipientStatus struct {
	Destination string `json:"destination"`
	Status      string `json:"status"`
	LastUpdate  string `json:"lastUpdate"`
}

// SendNotification places a future notification order. A requested send
// time in the past is clamped forward by the margin rather than rejected.
// Each call carries a fresh idempotency id.
func (c *VarslingClient) SendNotification(ctx context.Context, p SendParams) (Shipment, error) {
	if _, err := mail.ParseAddress(p.Recipient); err != nil {
		return Shipment{}, apperr.Validation(fmt.Sprintf("invalid recipient address %q", p.Recipient)).WithOp("varsling.SendNotification")
	}
	if p.Subject == "" || p.Body == "" {
		return Shipment{}, apperr.Validation("notification subject and body are required").WithOp("varsling.SendNotification")
	}

	sendAt, err := deadline.ParseTimestamp(p.SendTime)
	if err != nil {
		return Shipment{}, err
	}
	if now := c.now(); sendAt.Before(now) {
		sendAt = now.Add(sendTimeMargin)
	}
	sendTime := deadline.FormatTimestamp(sendAt)

	idempotencyID := uuid.NewString()
	order := map[string]any{
		"idempotencyId":     idempotencyID,
		"sendersReference":  p.SendersReference,
		"requestedSendTime": sendTime,
		"recipient": map[string]any{
			"recipientEmail": map[string]any{
				"emailAddress": p.Recipient,
				"emailSettings": map[string]any{
					"subject":     p.Subject,
					"body":        p.Body,
					"contentType": "Plain",
				},
			},
		},
	}

	var created struct {
		Notification struct {
			ShipmentID string `json:"shipmentId"`
		} `json:"notification"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.base+"/future/orders", order, &created); err != nil {
		return Shipment{}, err
	}
	if created.Notification.ShipmentID == "" {
		return Shipment{}, apperr.Decode("order response missing shipmentId").WithOp("varsling.SendNotification")
	}

	c.log.Info("notification ordered",
		"shipment_id", created.Notification.ShipmentID,
		"send_time", sendTime,
		"senders_reference", p.SendersReference,
	)
	return Shipment{
		ID:            created.Notification.ShipmentID,
		IdempotencyID: idempotencyID,
		SendTime:      sendTime,
		Recipient:     p.Recipient,
	}, nil
}

// GetShipmentStatus polls the delivery state of a shipment.
func (c *VarslingClient) GetShipmentStatus(ctx context.Context, shipmentID string) (ShipmentStatus, error) {
	var status ShipmentStatus
	err := c.doJSON(ctx, http.MethodGet, c.base+"/future/shipment/"+shipmentID, nil, &status)
	if status.ShipmentID == "" {
		status.ShipmentID = shipmentID
	}
	return status, err
}

// CancelNotification cancels a not-yet-sent order.
func (c *VarslingClient) CancelNotification(ctx context.Context, shipmentID string) error {
	return c.doJSON(ctx, http.MethodPut, c.base+"/future/orders/"+shipmentID+"/cancel", nil, nil)
}

func (c *VarslingClient) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "encode request body", err).WithOp("varsling.doJSON")
		}
		body = bytes.NewReader(raw)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err).WithOp("varsling.doJSON")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "varsling request failed", err).WithOp("varsling.doJSON")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError("varsling."+method, resp)
		c.log.UpstreamError("varsling", method+" "+url, resp.StatusCode, err)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindDecode, "decode varsling response", err).WithOp("varsling.doJSON")
	}
	return nil
}
