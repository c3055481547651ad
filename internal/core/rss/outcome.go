package rss

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed ingestion.
type ErrorKind string

const (
	// KindConnectivity means the feed host could not be reached.
	KindConnectivity ErrorKind = "connectivity"
	// KindFetch means the host answered with a non-2xx status.
	KindFetch       ErrorKind = "fetch"
	KindParse       ErrorKind = "parse"
	KindPersistence ErrorKind = "persistence"
)

// ReasonCapacity is the skip reason when the owner's quota would be exceeded.
const ReasonCapacity = "capacity"

// Outcome is the result of ingesting one subscription.
type Outcome struct {
	SubscriptionID int64     `json:"subscriptionId"`
	Subscription   string    `json:"subscription"`
	Status         Status    `json:"status"`
	NewItems       int       `json:"newItems"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	Kind           ErrorKind `json:"kind,omitempty"`

	Err error `json:"-"`
}

func (o Outcome) succeeded(n int) Outcome {
	o.Status = StatusSuccess
	o.NewItems = n
	return o
}

func (o Outcome) skipped(reason string) Outcome {
	o.Status = StatusSkipped
	o.Reason = reason
	return o
}

func (o Outcome) failed(err error) Outcome {
	o.Status = StatusError
	o.Err = err
	o.Error = err.Error()
	o.Kind = classify(err)
	return o
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return fmt.Sprintf("%q: %d new link(s)", o.Subscription, o.NewItems)
	case StatusSkipped:
		return fmt.Sprintf("%q: skipped (%s)", o.Subscription, o.Reason)
	default:
		return fmt.Sprintf("%q: %s error: %s", o.Subscription, o.Kind, o.Error)
	}
}

func classify(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Connectivity() {
			return KindConnectivity
		}
		return KindFetch
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	return KindPersistence
}
