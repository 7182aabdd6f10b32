package domain

import (
	"strings"
	"time"
)

// DisputeStatus is the moderation state of a dispute.
type DisputeStatus string

const (
	StatusPending  DisputeStatus = "pending"
	StatusApproved DisputeStatus = "approved"
	StatusRejected DisputeStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s DisputeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s DisputeStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RatingType is the side of the rental relationship the disputed rating belongs to.
type RatingType string

const (
	RatingTypeTenant   RatingType = "tenant"
	RatingTypeLandlord RatingType = "landlord"
)

// ReasonType classifies why the disputant believes a rating is unfair.
type ReasonType string

const (
	ReasonOutOfControl         ReasonType = "out_of_control"
	ReasonPersonalBias         ReasonType = "personal_bias"
	ReasonInaccurateAssessment ReasonType = "inaccurate_assessment"
	ReasonMisunderstanding     ReasonType = "misunderstanding"
	ReasonOther                ReasonType = "other"
)

// Action is a moderator decision on a pending dispute.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction normalizes raw input into an Action.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionApprove:
		return ActionApprove, true
	case ActionReject:
		return ActionReject, true
	default:
		return "", false
	}
}

// TargetStatus is the terminal status an action moves a pending dispute to.
func (a Action) TargetStatus() DisputeStatus {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Dispute is a formal challenge against a rating. Status is authoritative;
// the Notification.Disputed flag only mirrors it for display.
type Dispute struct {
	ID            string        `json:"id"`
	RatingRef     string        `json:"ratingRef"`
	RatingType    RatingType    `json:"ratingType"`
	DisputedByRef string        `json:"disputedByRef"`
	RatedByRef    string        `json:"ratedByRef"`
	Categories    []Category    `json:"categories"`
	Reason        string        `json:"reason"`
	ReasonType    ReasonType    `json:"reasonType"`
	Status        DisputeStatus `json:"status"`
	ResolvedBy    *string       `json:"resolvedBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty"`
}
