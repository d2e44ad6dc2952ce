package domain

import "errors"

// MediaType mirrors the provider's MediaContentType classification.
type MediaType string

const (
	MediaNone     MediaType = "none"
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// JobOutcome is the terminal classification of one worker pass over a job.
type JobOutcome string

const (
	OutcomeSuccess      JobOutcome = "success"
	OutcomeRateLimited  JobOutcome = "rate_limited"
	OutcomeManualMode   JobOutcome = "manual_mode"
	OutcomeMediaHandled JobOutcome = "media_handled"
	OutcomeError        JobOutcome = "error"
)

// InboundMessageJob is the unit of work the webhook receiver enqueues and the
// worker consumes. MessageID is the provider-assigned idempotency key. ChatKey
// is the stable conversation identity (salon + normalized sender phone), usable
// for locking and FIFO grouping before any chat row exists.
type InboundMessageJob struct {
	MessageID        string    `json:"messageId"`
	ChatKey          string    `json:"chatKey"`
	SalonID          string    `json:"salonId"`
	SenderPhone      string    `json:"senderPhone"`
	ReplyDestination string    `json:"replyDestination"`
	BodyText         string    `json:"bodyText"`
	HasMedia         bool      `json:"hasMedia"`
	MediaType        MediaType `json:"mediaType"`
	MediaURL         string    `json:"mediaUrl,omitempty"`
	CustomerName     string    `json:"customerName,omitempty"`
	WaID             string    `json:"waId,omitempty"`
	IsNewCustomer    bool      `json:"isNewCustomer"`
}

func (j InboundMessageJob) Validate() error {
	if j.MessageID == "" || j.ChatKey == "" || j.SalonID == "" || j.SenderPhone == "" {
		return ErrMissingFields
	}
	if j.BodyText == "" && !j.HasMedia {
		return ErrMissingFields
	}
	return nil
}

var ErrMissingFields = errors.New("missing required fields")

// ChatKey builds the conversation identity for a (salon, normalized phone)
// pair. One chat per pair, found-or-created, never duplicated.
func ChatKey(salonID, phone string) string {
	return salonID + ":" + phone
}

// ClassifyMedia maps a provider content type ("image/jpeg", "audio/ogg", ...)
// to our media enum.
func ClassifyMedia(contentType string) MediaType {
	switch {
	case contentType == "":
		return MediaNone
	case len(contentType) >= 5 && contentType[:5] == "image":
		return MediaImage
	case len(contentType) >= 5 && contentType[:5] == "audio":
		return MediaAudio
	case len(contentType) >= 5 && contentType[:5] == "video":
		return MediaVideo
	default:
		return MediaDocument
	}
}
