package model

import "time"

// ActivityKind classifies the business reason for a ledger movement.
// The set is closed so the audit schema stays stable; open-ended detail
// belongs in ActivityRecord.Metadata.
type ActivityKind string

const (
	KindCVGenerated            ActivityKind = "cv_generated"
	KindCoverLetterGenerated   ActivityKind = "cover_letter_generated"
	KindMockInterviewCompleted ActivityKind = "mock_interview_completed"
	KindRefund                 ActivityKind = "refund"
	KindAdminGrant             ActivityKind = "admin_grant"
	KindOther                  ActivityKind = "other"
)

// Valid reports whether k is one of the known activity kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case KindCVGenerated, KindCoverLetterGenerated, KindMockInterviewCompleted,
		KindRefund, KindAdminGrant, KindOther:
		return true
	}
	return false
}

// IsCredit reports whether k moves value toward the principal (positive
// delta) rather than consuming it.
func (k ActivityKind) IsCredit() bool {
	return k == KindRefund || k == KindAdminGrant
}

// ActivityRecord is one immutable audit entry. Exactly one record exists per
// committed spend (and per committed grant or refund); none is ever written
// for a failed attempt.
type ActivityRecord struct {
	ID          string
	Principal   string
	Kind        ActivityKind
	Title       string
	AmountSpent int64
	Score       *float64
	Metadata    map[string]string
	CreatedAt   time.Time
}
