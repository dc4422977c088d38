// Package eventlog persists the processing history: per-organisation event
// documents plus one record per notification shipment.
package eventlog

import (
	"encoding/json"
	"fmt"
)

// Notification record types.
const (
	TypeNotificationSent     = "notification-sent"
	TypeNotificationReceived = "notification-received"
)

// Event is one entry in an organisation's event log. Created and
// downloaded events carry stage-qualified type names from the workflow
// definitions, so the same report id can move through every stage without
// the idempotency check tripping across stages.
type Event struct {
	Type            string          `json:"event_type"`
	ReportID        string          `json:"digitaliseringstiltak_report_id"`
	OrgNumber       string          `json:"org_number"`
	OrgName         string          `json:"virksomhets_name,omitempty"`
	AppName         string          `json:"app_name,omitempty"`
	PartyID         string          `json:"instance_party_id,omitempty"`
	InstanceID      string          `json:"instance_id,omitempty"`
	DataElementID   string          `json:"data_element_id,omitempty"`
	InstanceCreated string          `json:"instance_created,omitempty"`
	ProcessedAt     string          `json:"processed_timestamp"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// ShipmentRecord is the stored trace of one notification order.
type ShipmentRecord struct {
	Type       string `json:"event_type"`
	ReportID   string `json:"digitaliseringstiltak_report_id"`
	OrgNumber  string `json:"org_number"`
	OrgName    string `json:"virksomhets_name,omitempty"`
	AppName    string `json:"app_name"`
	ShipmentID string `json:"shipment_id"`
	Recipient  string `json:"recipient_email"`
	SendTime   string `json:"send_time"`
	Status     string `json:"status,omitempty"`
	RecordedAt string `json:"recorded_timestamp"`
}

// Key is the document key a shipment record is stored under.
func (r ShipmentRecord) Key() string {
	return fmt.Sprintf("%s_%s_%s_%s", r.ReportID, r.AppName, r.Type, r.ShipmentID)
}

// ShipmentPrefix is the key prefix shared by all records for one report,
// app and record type.
func ShipmentPrefix(reportID, appName, recordType string) string {
	return fmt.Sprintf("%s_%s_%s_", reportID, appName, recordType)
}
