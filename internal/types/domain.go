package types

import (
	"encoding/json"
	"time"
)

// ChangeType identifies the kind of resource change a subscription watches.
// Multiple types may be combined as a comma-separated list (e.g.
// "created,updated"), matching the remote service's wire format.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// TLSv12 is the minimum TLS version advertised on subscription creation.
const TLSv12 = "v1_2"

// MaxSubscriptionLifetime is the remote service's hard ceiling on
// subscription lifetime. Requests with a later expiration are rejected
// remotely, so they are refused locally before being sent.
const MaxSubscriptionLifetime = 72 * time.Hour

// Subscription is a standing registration held by the remote change-tracking
// service. The identifier is assigned remotely; this system never extends an
// existing subscription, it only creates replacements.
type Subscription struct {
	ID                       string     `json:"id,omitempty"`
	Resource                 string     `json:"resource"`
	ChangeType               ChangeType `json:"changeType"`
	NotificationURL          string     `json:"notificationUrl"`
	LifecycleNotificationURL string     `json:"lifecycleNotificationUrl,omitempty"`
	ExpirationDateTime       time.Time  `json:"expirationDateTime"`
	ClientState              string     `json:"clientState,omitempty"`
	LatestSupportedTLS       string     `json:"latestSupportedTlsVersion,omitempty"`
	IncludeResourceData      bool       `json:"includeResourceData,omitempty"`
	EncryptionCertificate    string     `json:"encryptionCertificate,omitempty"`
	EncryptionCertificateID  string     `json:"encryptionCertificateId,omitempty"`
	ApplicationID            string     `json:"applicationId,omitempty"`
	CreatorID                string     `json:"creatorId,omitempty"`
}

// NotificationEnvelope is the decoded body of one inbound webhook call.
// Items are kept in delivery order; the processor must preserve that order
// within an envelope, while independent envelopes may run concurrently.
type NotificationEnvelope struct {
	Value []NotificationItem `json:"value"`
}

// NotificationItem is one change notification inside an envelope. The
// ClientState echoed by the remote service must match the secret recorded at
// subscription creation; any mismatch rejects the whole envelope.
type NotificationItem struct {
	SubscriptionID     string            `json:"subscriptionId"`
	ExpirationDateTime time.Time         `json:"subscriptionExpirationDateTime,omitempty"`
	ChangeType         ChangeType        `json:"changeType"`
	ClientState        string            `json:"clientState"`
	Resource           string            `json:"resource"`
	ResourceData       *ResourceData     `json:"resourceData,omitempty"`
	TenantID           string            `json:"tenantId,omitempty"`
	EncryptedContent   *EncryptedContent `json:"encryptedContent,omitempty"`
	// LifecycleEvent is set only on deliveries to the lifecycle endpoint
	// ("reauthorizationRequired", "subscriptionRemoved", "missed").
	LifecycleEvent string `json:"lifecycleEvent,omitempty"`
}

// ResourceData is the optional summary of the changed resource carried
// inline in a notification item.
type ResourceData struct {
	ODataType string `json:"@odata.type,omitempty"`
	ODataID   string `json:"@odata.id,omitempty"`
	ID        string `json:"id,omitempty"`
}

// EncryptedContent carries the certificate-wrapped, symmetrically encrypted
// form of the changed resource's data. It exists only transiently inside a
// NotificationItem and is never persisted.
type EncryptedContent struct {
	Data                            string `json:"data"`
	DataKey                         string `json:"dataKey"`
	DataSignature                   string `json:"dataSignature,omitempty"`
	EncryptionCertificateID         string `json:"encryptionCertificateId"`
	EncryptionCertificateThumbprint string `json:"encryptionCertificateThumbprint"`
}

// EmailAddress is a name/address pair as carried by the remote mail API.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MessageBody holds message content plus its content type ("html" or "text").
type MessageBody struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Message is the normalized form of a fetched mail resource, the payload
// handed to the downstream forwarder.
type Message struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	From             EmailAddress   `json:"from"`
	ToRecipients     []EmailAddress `json:"to"`
	Body             MessageBody    `json:"body"`
	ReceivedDateTime *time.Time     `json:"received_date_time,omitempty"`
	SentDateTime     *time.Time     `json:"sent_date_time,omitempty"`
	IsRead           bool           `json:"is_read"`
	HasAttachments   bool           `json:"has_attachments"`
}

// AuditRecord is the append-only record persisted for every accepted
// notification request, written before the webhook is acknowledged.
type AuditRecord struct {
	ID         string              `json:"id"`
	ReceivedAt time.Time           `json:"received_at"`
	Endpoint   string              `json:"endpoint"`
	Headers    map[string][]string `json:"headers"`
	Body       json.RawMessage     `json:"body"`
}
