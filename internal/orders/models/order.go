package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a service order.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
)

// Statuses lists every legal status in lifecycle order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusClosed}

// transitions holds the forward moves an edit may perform. Reopening a
// closed order has its own operation.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusClosed},
	StatusClosed:     {},
}

// statusAliases maps normalized spellings, including the labels found in
// older data, onto the canonical values.
var statusAliases = map[string]Status{
	"open":         StatusOpen,
	"aberta":       StatusOpen,
	"in progress":  StatusInProgress,
	"inprogress":   StatusInProgress,
	"em andamento": StatusInProgress,
	"closed":       StatusClosed,
	"concluída":    StatusClosed,
	"concluida":    StatusClosed,
	"finalizada":   StatusClosed,
}

// ParseStatus resolves s to a legal Status. The second result is false when
// s names no known state.
func ParseStatus(s string) (Status, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	st, ok := statusAliases[key]
	return st, ok
}

// Valid reports whether s is one of the three legal states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s ends the normal flow.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// CanTransition reports whether an edit may move an order from s to next.
// Keeping the current status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ServiceOrder is a request for work against a company.
type ServiceOrder struct {
	ID            int64
	CompanyID     int64
	ServiceTypeID int64
	Title         string
	Description   string
	Status        Status
	OpenedAt      time.Time
	// LastUpdatedAt is never before OpenedAt and grows with every mutation.
	LastUpdatedAt time.Time
}

// OrderEdit is a full-record update of a service order.
type OrderEdit struct {
	ID            int64
	CompanyID     int64
	ServiceTypeID int64
	Title         string
	Description   string
	// Status is parsed with ParseStatus, so legacy labels are accepted.
	Status string
}

// OrderSummary is a list row with the catalog names resolved.
type OrderSummary struct {
	ID              int64
	CompanyID       int64
	CompanyName     string
	ServiceTypeID   int64
	ServiceTypeName string
	Title           string
	Status          Status
	OpenedAt        time.Time
	LastUpdatedAt   time.Time
}

// OrderFilter narrows a listing. Empty Statuses means every status.
type OrderFilter struct {
	Statuses      []Status
	CompanyID     *int64
	ServiceTypeID *int64
}

// DefaultOrderFilter selects the work still pending: every non-terminal
// status.
func DefaultOrderFilter() OrderFilter {
	var f OrderFilter
	for _, s := range Statuses {
		if !s.Terminal() {
			f.Statuses = append(f.Statuses, s)
		}
	}
	return f
}
