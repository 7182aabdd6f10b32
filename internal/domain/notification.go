package domain

import (
	"encoding/json"
	"time"
)

// NotificationType drives how a notification is rendered.
type NotificationType string

const (
	TypeNewRating        NotificationType = "new_rating"
	TypeDisputeSubmitted NotificationType = "dispute_submitted"
	TypeDisputeReceived  NotificationType = "dispute_received"
	TypeDisputeRejected  NotificationType = "dispute_rejected"
	TypeDisputeApproved  NotificationType = "dispute_approved"
	TypeSystem           NotificationType = "system"
	TypeViewingRequest   NotificationType = "viewing_request"
)

// Known reports whether t is one of the defined notification types.
func (t NotificationType) Known() bool {
	switch t {
	case TypeNewRating, TypeDisputeSubmitted, TypeDisputeReceived, TypeDisputeRejected,
		TypeDisputeApproved, TypeSystem, TypeViewingRequest:
		return true
	default:
		return false
	}
}

// Stream is one of the independently fetched notification feeds.
type Stream string

const (
	StreamSystem Stream = "system"
	StreamRating Stream = "rating"
)

// ParseStream returns the stream named by raw.
func ParseStream(raw string) (Stream, bool) {
	switch Stream(raw) {
	case StreamSystem, StreamRating:
		return Stream(raw), true
	default:
		return "", false
	}
}

// Stream reports which feed a notification type belongs to.
func (t NotificationType) Stream() Stream {
	if t == TypeNewRating {
		return StreamRating
	}
	return StreamSystem
}

// RatingStreamTypes lists the types served by the rating stream.
func RatingStreamTypes() []string {
	return []string{string(TypeNewRating)}
}

// Notification is a message addressed to a single recipient.
//
// Disputed is a denormalized flag set on new_rating notifications once the
// recipient has disputed the rating. Dispute.Status stays the source of truth.
type Notification struct {
	ID           string           `json:"id"`
	RecipientRef string           `json:"recipientRef"`
	Type         NotificationType `json:"type"`
	Message      string           `json:"message"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Read         bool             `json:"read"`
	Disputed     bool             `json:"disputed"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// DecodeData unmarshals the typed payload into dst.
func (n Notification) DecodeData(dst any) error {
	if len(n.Data) == 0 {
		return nil
	}
	return json.Unmarshal(n.Data, dst)
}

// RawNotification is the loosely shaped item as returned by a notification
// source. Any field may be missing and is filled in during normalization.
type RawNotification struct {
	ID           string          `json:"id,omitempty"`
	RecipientRef string          `json:"recipientRef,omitempty"`
	Type         string          `json:"type,omitempty"`
	Message      string          `json:"message,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Read         bool            `json:"read"`
	Disputed     bool            `json:"disputed"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
}

// Party identifies a user referenced from a notification payload.
type Party struct {
	Ref string `json:"ref"`
}

// NewRatingData is the payload of a new_rating notification.
type NewRatingData struct {
	RatingID   string     `json:"ratingId"`
	EntityType EntityType `json:"entityType"`
	RatedBy    Party      `json:"ratedBy"`
	Categories []Category `json:"categories"`
	Comment    *string    `json:"comment,omitempty"`
}

// DisputeSubmittedData is sent to every moderator when a dispute is filed.
type DisputeSubmittedData struct {
	DisputeID  string     `json:"disputeId"`
	RatingID   string     `json:"ratingId"`
	RatingType RatingType `json:"ratingType"`
	DisputedBy Party      `json:"disputedBy"`
	RatedBy    Party      `json:"ratedBy"`
	Categories []Category `json:"categories"`
	Reason     string     `json:"reason"`
	ReasonType ReasonType `json:"reasonType"`
}

// DisputeReceivedData confirms receipt of a dispute to the disputant.
type DisputeReceivedData struct {
	DisputeID  string     `json:"disputeId"`
	RatingID   string     `json:"ratingId"`
	RatedBy    Party      `json:"ratedBy"`
	Categories []Category `json:"categories"`
	Reason     string     `json:"reason"`
	ReasonType ReasonType `json:"reasonType"`
}

// DisputeStatusData accompanies dispute_approved and dispute_rejected.
type DisputeStatusData struct {
	DisputeID      string        `json:"disputeId"`
	RatingID       string        `json:"ratingId"`
	Status         DisputeStatus `json:"status"`
	SupportContact string        `json:"supportContact,omitempty"`
}
