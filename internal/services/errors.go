// Package services defines the business logic of the ingestion and delivery
// pipeline. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrSourceNotFound indicates the inbound source ID is unknown or the
	// source has been deactivated. The webhook route answers 404 for both,
	// deliberately not distinguishing them to callers.
	ErrSourceNotFound = errors.New("inbound source not found")

	// ErrSecretMismatch indicates the presented webhook secret does not
	// match the source's configured secret.
	ErrSecretMismatch = errors.New("webhook secret mismatch")

	// ErrNoIdentity is returned when a payload resolves to no contact
	// identity at all (no email, phone, or conversation JID).
	ErrNoIdentity = errors.New("payload carries no contact identity")

	// ErrSessionNotFound indicates the requested chat session does not
	// exist or belongs to another organization.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrMessageNotFound indicates the requested message does not exist or
	// belongs to another organization.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyMessage is returned when an outbound send carries neither
	// text content nor a media URL.
	ErrEmptyMessage = errors.New("content or media_url required")

	// ErrUserNotFound indicates the requested user does not exist in the
	// caller's organization.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRole is returned when a user payload carries a role outside
	// the allowed set.
	ErrInvalidRole = errors.New("role must be admin or member")
)
