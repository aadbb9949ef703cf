package appErrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id uuid.UUID) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// IsCampaignNotFound reports whether err wraps an ErrCampaignNotFound.
func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// ErrInvalidTransition is returned when a status change is requested from a
// state that does not allow it.
type ErrInvalidTransition struct {
	CampaignID uuid.UUID
	From       string
	To         string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %s cannot move from %s to %s", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(id uuid.UUID, from, to string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, To: to}
}

func IsInvalidTransition(err error) bool {
	var it *ErrInvalidTransition
	return errors.As(err, &it)
}

// ProviderErrorKind classifies why a provider refused or failed a send.
type ProviderErrorKind string

const (
	KindTimeout        ProviderErrorKind = "timeout"
	KindNetwork        ProviderErrorKind = "network"
	KindRejected       ProviderErrorKind = "rejected"
	KindInvalidAddress ProviderErrorKind = "invalid_address"
	KindNotConfigured  ProviderErrorKind = "not_configured"
	KindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError is returned by every email.Sender implementation.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider string, kind ProviderErrorKind, err error) error {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the provider error kind, KindUnknown for anything else.
func KindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	return KindUnknown
}

// ErrCustomerNotFound is returned when a preview names a customer the tenant does not have.
var ErrCustomerNotFound = errors.New("customer not found")
