// Package businessflow contains the core business logic and use cases for campaign run workflows
package businessflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business error for callers and transport mapping
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindInvalidState      ErrorKind = "invalid_state"
	KindProvider          ErrorKind = "provider"
	KindProviderRejection ErrorKind = "provider_rejection"
	KindNotFound          ErrorKind = "not_found"
	KindInternal          ErrorKind = "internal"
)

// Business flow error constants
var (
	// Customer errors
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrUnknownCustomer    = errors.New("unknown customer")
	ErrCustomerCodeExists = errors.New("customer code already exists")

	// Media errors
	ErrMediaNotFound          = errors.New("media not found")
	ErrInvalidMediaType       = errors.New("media type must be Image or Video")
	ErrMediaFileRequired      = errors.New("media file is required")
	ErrMediaOwnershipMismatch = errors.New("selected media belongs to a different customer")

	// Audience errors
	ErrAudienceNotFound         = errors.New("audience snapshot not found")
	ErrAudienceSnapshotNotFound = errors.New("unknown audience snapshot")
	ErrAudienceSnapshotRequired = errors.New("campaign has no audience snapshot")
	ErrAudienceEmpty            = errors.New("audience snapshot has no rows")
	ErrAudienceFileInvalid      = errors.New("audience file is invalid")

	// Campaign errors
	ErrCampaignNotFound           = errors.New("campaign not found")
	ErrUnknownCampaign            = errors.New("unknown campaign")
	ErrCampaignNameRequired       = errors.New("campaign name is required")
	ErrTemplatePlaceholderMissing = errors.New("message template must contain the %s link placeholder")
	ErrCampaignMediaLocked        = errors.New("campaign media cannot change after the first run")
	ErrCampaignRunInProgress      = errors.New("campaign already has a run in progress")

	// Scheduled run errors
	ErrScheduledRunNotFound = errors.New("scheduled run not found")
	ErrRunAtRequired        = errors.New("run_at is required")
	ErrInvalidTimezone      = errors.New("unknown timezone")
	ErrInvalidLocalRunAt    = errors.New("local_run_at must be formatted as YYYY-MM-DD HH:MM")
	ErrScheduledRunNotReady = errors.New("scheduled run is already running or finished")
	ErrScheduledRunBusy     = errors.New("scheduled run is being processed by another request")
	ErrCancelNotAllowed     = errors.New("only scheduled or waiting_token runs can be canceled")

	// Run errors
	ErrRunNotFound       = errors.New("run not found")
	ErrRunResultNotFound = errors.New("run has no result")
	ErrRunNotRunning     = errors.New("run is no longer running")
	ErrInvalidRunStatus  = errors.New("invalid run status")
	ErrLogChunkRequired  = errors.New("log chunk is required")

	// Credential errors
	ErrCredentialRequired = errors.New("credential is required")

	// Provider errors
	ErrProviderUnavailable = errors.New("messaging provider unavailable")
	ErrProviderRejected    = errors.New("messaging provider rejected the request")
)

var sentinelKinds = map[error]ErrorKind{
	ErrCustomerNotFound:   KindNotFound,
	ErrUnknownCustomer:    KindValidation,
	ErrCustomerCodeExists: KindConflict,

	ErrMediaNotFound:          KindValidation,
	ErrInvalidMediaType:       KindValidation,
	ErrMediaFileRequired:      KindValidation,
	ErrMediaOwnershipMismatch: KindValidation,

	ErrAudienceNotFound:         KindNotFound,
	ErrAudienceSnapshotNotFound: KindValidation,
	ErrAudienceSnapshotRequired: KindValidation,
	ErrAudienceEmpty:            KindValidation,
	ErrAudienceFileInvalid:      KindValidation,

	ErrCampaignNotFound:           KindNotFound,
	ErrUnknownCampaign:            KindValidation,
	ErrCampaignNameRequired:       KindValidation,
	ErrTemplatePlaceholderMissing: KindValidation,
	ErrCampaignMediaLocked:        KindInvalidState,
	ErrCampaignRunInProgress:      KindConflict,

	ErrScheduledRunNotFound: KindNotFound,
	ErrRunAtRequired:        KindValidation,
	ErrInvalidTimezone:      KindValidation,
	ErrInvalidLocalRunAt:    KindValidation,
	ErrScheduledRunNotReady: KindConflict,
	ErrScheduledRunBusy:     KindConflict,
	ErrCancelNotAllowed:     KindInvalidState,

	ErrRunNotFound:       KindNotFound,
	ErrRunResultNotFound: KindNotFound,
	ErrRunNotRunning:     KindInvalidState,
	ErrInvalidRunStatus:  KindValidation,
	ErrLogChunkRequired:  KindValidation,

	ErrCredentialRequired: KindValidation,

	ErrProviderUnavailable: KindProvider,
	ErrProviderRejected:    KindProviderRejection,
}

// KindOf returns the kind of the first known sentinel in err's chain
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var be *BusinessError
	if errors.As(err, &be) && be.Kind != "" {
		return be.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

type BusinessError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError wraps err; the kind is taken from the sentinel it carries
func NewBusinessError(code, message string, err error) *BusinessError {
	kind := KindInternal
	if err != nil {
		kind = KindOf(err)
	}
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	be := NewBusinessError(code, "", err)
	be.Message = fmt.Sprintf(message, args...)
	return be
}

func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}

func IsConflictError(err error) bool {
	return KindOf(err) == KindConflict
}

func IsInvalidStateError(err error) bool {
	return KindOf(err) == KindInvalidState
}

func IsNotFoundError(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsProviderError(err error) bool {
	k := KindOf(err)
	return k == KindProvider || k == KindProviderRejection
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsTemplatePlaceholderMissing(err error) bool {
	return errors.Is(err, ErrTemplatePlaceholderMissing)
}

func IsCampaignRunInProgress(err error) bool {
	return errors.Is(err, ErrCampaignRunInProgress)
}

func IsScheduledRunNotReady(err error) bool {
	return errors.Is(err, ErrScheduledRunNotReady)
}

func IsCancelNotAllowed(err error) bool {
	return errors.Is(err, ErrCancelNotAllowed)
}

func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
