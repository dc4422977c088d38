// Package webhook is the front door for platform events: it receives
// cloud events, runs completed submissions through the tracker, and
// notifies the contact person about the next stage.
package webhook

import (
	"fmt"
	"net/url"
	"strings"

	"regvil_tracker_backend/platform/apperr"
)

// EventProcessCompleted is the only cloud event type that triggers
// processing. Everything else is acknowledged and dropped.
const EventProcessCompleted = "app.instance.process.completed"

// InboundEvent is the subset of the cloud event envelope we act on.
type InboundEvent struct {
	Type   string `json:"type" binding:"required"`
	Source string `json:"source" binding:"required"`
}

// InstanceRef locates one instance at the platform.
type InstanceRef struct {
	AppName      string
	PartyID      string
	InstanceGUID string
}

// ParseSource extracts the instance reference from a cloud event source
// URL. The last three path segments are the application name, the party
// id and the instance guid.
func ParseSource(source string) (InstanceRef, error) {
	u, err := url.Parse(source)
	if err != nil {
		return InstanceRef{}, apperr.Wrap(apperr.KindValidation, "malformed event source", err).WithOp("webhook.ParseSource")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return InstanceRef{}, apperr.Validation(fmt.Sprintf("event source %q has too few path segments", source)).WithOp("webhook.ParseSource")
	}

	ref := InstanceRef{
		AppName:      segments[len(segments)-3],
		PartyID:      segments[len(segments)-2],
		InstanceGUID: segments[len(segments)-1],
	}
	if ref.AppName == "" || ref.PartyID == "" || ref.InstanceGUID == "" {
		return InstanceRef{}, apperr.Validation(fmt.Sprintf("event source %q has empty path segments", source)).WithOp("webhook.ParseSource")
	}
	return ref, nil
}
