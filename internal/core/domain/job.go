package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProcessingJob struct {
	ID               string           `json:"id"`
	ExpenseID        string           `json:"expense_id"`
	Status           ProcessingStatus `json:"status"`
	IdempotencyKey   string           `json:"idempotency_key"`
	AttemptCount     int              `json:"attempt_count"`
	MaxAttempts      int              `json:"max_attempts"`
	LastErrorMessage *string          `json:"last_error_message"`
	NextAttemptAt    *time.Time       `json:"next_attempt_at"`
	LockedUntil      *time.Time       `json:"locked_until"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Eligible reports whether a poller may claim the job at now.
func (j ProcessingJob) Eligible(now time.Time) bool {
	if j.Status != StatusUploaded && j.Status != StatusProcessing {
		return false
	}
	if j.NextAttemptAt != nil && j.NextAttemptAt.After(now) {
		return false
	}
	if j.LockedUntil != nil && !j.LockedUntil.Before(now) {
		return false
	}
	return true
}

// JobSource is the material a job extracts from. It is implemented only by
// ReceiptJob and VoiceJob.
type JobSource interface {
	jobSource()
}

type ReceiptJob struct {
	ObjectKey string
}

type VoiceJob struct {
	Transcript string
}

func (ReceiptJob) jobSource() {}
func (VoiceJob) jobSource()   {}

// SourceFor builds the job source from the stored expense draft.
func SourceFor(expense *Expense) (JobSource, error) {
	if expense == nil {
		return nil, WrapError(ErrInvalidInput, "resolve job source", fmt.Errorf("expense is nil"))
	}
	switch expense.Source {
	case SourceReceipt:
		if expense.ReceiptURL == nil || strings.TrimSpace(*expense.ReceiptURL) == "" {
			return nil, WrapError(ErrInvalidInput, "resolve job source", fmt.Errorf("expense %s has no receipt object key", expense.ID))
		}
		return ReceiptJob{ObjectKey: *expense.ReceiptURL}, nil
	case SourceVoice:
		if strings.TrimSpace(expense.RawInput.Transcript) == "" {
			return nil, WrapError(ErrInvalidInput, "resolve job source", fmt.Errorf("expense %s has no transcript", expense.ID))
		}
		return VoiceJob{Transcript: expense.RawInput.Transcript}, nil
	default:
		return nil, WrapError(ErrInvalidInput, "resolve job source", fmt.Errorf("unsupported source %q", expense.Source))
	}
}

// ClaimedJob is a job leased to one poller together with its expense.
type ClaimedJob struct {
	Job     ProcessingJob
	Expense Expense
}

// JobLease identifies one claim of a job. Writes made under a lease only
// apply while the job is still processing under that same lease; otherwise
// they fail with ErrJobSuperseded.
type JobLease struct {
	JobID       string
	LockedUntil time.Time
}

// Lease returns the lease the job was claimed under.
func (j ProcessingJob) Lease() JobLease {
	lease := JobLease{JobID: j.ID}
	if j.LockedUntil != nil {
		lease.LockedUntil = *j.LockedUntil
	}
	return lease
}

// Holds reports whether job is still processing under this lease.
func (l JobLease) Holds(job ProcessingJob) bool {
	return job.ID == l.JobID &&
		job.Status == StatusProcessing &&
		job.LockedUntil != nil &&
		job.LockedUntil.Equal(l.LockedUntil)
}

// ExtractedFields are the candidate values produced by a field extractor.
type ExtractedFields struct {
	Amount    *decimal.Decimal
	Merchant  *string
	Date      *time.Time
	Category  *string
	Currency  string
	LineItems []LineItem
}

// ExtractionOutcome is everything written on a successful job run.
type ExtractionOutcome struct {
	Fields     ExtractedFields
	Category   *string
	Confidence decimal.Decimal
	RawInput   RawInput
}

// JobFailure is the state written by the failure handler under Lease.
type JobFailure struct {
	Lease         JobLease
	ExpenseID     string
	Status        ProcessingStatus
	AttemptCount  int
	ErrorMessage  string
	NextAttemptAt *time.Time
}

// PreparedReceipt is a fetched receipt ready for text recognition. When the
// document already carries a text layer, EmbeddedText is set and OCR is skipped.
type PreparedReceipt struct {
	Image        []byte
	MIMEType     string
	EmbeddedText string
}

type IngestionRequest struct {
	Source         ExpenseSource
	ObjectKey      string
	Transcript     string
	IdempotencyKey string
}

type IntakeResult struct {
	ExpenseID        string           `json:"expense_id"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	Created          bool             `json:"-"`
}
