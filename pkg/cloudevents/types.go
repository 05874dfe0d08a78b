package cloudevents

import (
	"errors"
	"time"
)

// SpecVersion is the CloudEvents version emitted by this service
const SpecVersion = "1.0"

// SourceReturns is the source attribute of every event this service emits
const SourceReturns = "/wms/returns-service"

// Extension attribute names. CloudEvents requires lower-case alphanumerics.
const (
	ExtTenantID      = "tenantid"
	ExtCorrelationID = "correlationid"
)

// WMSCloudEvent is a CloudEvents 1.0 envelope in structured JSON mode
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	TenantID      string `json:"tenantid,omitempty"`
	CorrelationID string `json:"correlationid,omitempty"`
}

var (
	ErrMissingID     = errors.New("cloudevent: id is required")
	ErrMissingSource = errors.New("cloudevent: source is required")
	ErrMissingType   = errors.New("cloudevent: type is required")
	ErrBadVersion    = errors.New("cloudevent: unsupported specversion")
)

// Validate checks the required context attributes
func (e *WMSCloudEvent) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return ErrBadVersion
	case e.ID == "":
		return ErrMissingID
	case e.Source == "":
		return ErrMissingSource
	case e.Type == "":
		return ErrMissingType
	}
	return nil
}

// Headers returns the binary-mode attributes carried as Kafka headers alongside the structured body
func (e *WMSCloudEvent) Headers() map[string]string {
	h := map[string]string{
		"ce_specversion": e.SpecVersion,
		"ce_id":          e.ID,
		"ce_type":        e.Type,
		"ce_source":      e.Source,
		"content-type":   "application/cloudevents+json",
	}
	if e.Subject != "" {
		h["ce_subject"] = e.Subject
	}
	if e.TenantID != "" {
		h["ce_"+ExtTenantID] = e.TenantID
	}
	if e.CorrelationID != "" {
		h["ce_"+ExtCorrelationID] = e.CorrelationID
	}
	return h
}
