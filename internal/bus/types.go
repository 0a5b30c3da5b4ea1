// Package bus defines the normalized message types flowing between the
// webhook router and the processing pipeline.
package bus

import "time"

// InboundEvent is a normalized inbound chat message.
type InboundEvent struct {
	TenantID         string    `json:"tenant_id"`
	From             string    `json:"from"` // canonical phone
	ChannelMessageID string    `json:"channel_message_id"`
	Text             string    `json:"text"`
	MediaURL         string    `json:"media_url,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	// FromSelf marks echoes of our own outbound messages; the pipeline
	// drops them at the idempotency gate.
	FromSelf bool `json:"from_self,omitempty"`
}
