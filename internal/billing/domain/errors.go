package domain

import "errors"

var (
	ErrUnknownStatus        = errors.New("unknown subscription status")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrMissingUserID        = errors.New("user id is required")
)
