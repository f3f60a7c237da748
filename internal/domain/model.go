package domain

import "time"

// Core domain models. Wire/API shapes live in the adapters; keep these
// decoupled where helpful.

// Label is a reputation classification for a fingerprint.
type Label string

const (
	LabelClean     Label = "clean"
	LabelMalicious Label = "malicious"
	LabelUnknown   Label = "unknown"
)

// CaseState tracks where a fingerprint sits in its reporting lifecycle.
type CaseState string

const (
	CaseUnknown   CaseState = "unknown"
	CaseReported  CaseState = "reported"
	CaseConfirmed CaseState = "confirmed-phishing"
	CaseCleared   CaseState = "cleared"
)

// SubscriberState is the delivery eligibility of a subscriber.
type SubscriberState string

const (
	SubscriberActive SubscriberState = "active"
	SubscriberPaused SubscriberState = "paused"
)

// Verdict is one source's classification of a fingerprint at a point in time.
// Failed marks entries produced by a source outage rather than a real answer;
// they carry a shorter TTL so transient outages self-heal.
type Verdict struct {
	Fingerprint string
	Source      string
	Label       Label
	Detail      string
	Failed      bool
	CheckedAt   time.Time
	TTL         time.Duration
}

// Expired reports whether the verdict is past its TTL at the given instant.
func (v Verdict) Expired(now time.Time) bool {
	return now.After(v.CheckedAt.Add(v.TTL))
}

// Report is a community submission for a fingerprint. At most one active
// report exists per (fingerprint, submitter) pair; repeats refresh SubmittedAt.
type Report struct {
	ID          string
	Fingerprint string
	SubmitterID string
	RawURL      string
	SubmittedAt time.Time
}

// CaseRecord is the aggregate root tracking a fingerprint's history.
type CaseRecord struct {
	Fingerprint           string
	CanonicalURL          string
	Domain                string
	State                 CaseState
	DistinctReporterCount int
	FirstReportedAt       *time.Time
	PromotedAt            *time.Time
	ClearedAt             *time.Time
	VerdictLabel          Label
	VerdictCheckedAt      *time.Time
	UpdatedAt             time.Time
}

// Subscriber is a registered alert recipient.
type Subscriber struct {
	ID           string
	State        SubscriberState
	SubscribedAt time.Time
}

// Alert is created exactly once per promotion to confirmed-phishing.
// Delivery bookkeeping (the delivered-to set) lives in the alert store.
type Alert struct {
	ID           string
	Fingerprint  string
	CanonicalURL string
	Domain       string
	PromotedAt   time.Time
}

// AlertPayload is what the transport hands to a subscriber.
type AlertPayload struct {
	AlertID      string
	CanonicalURL string
	Domain       string
	PromotedAt   time.Time
}
