package domain

import (
	"math"
	"time"
)

// LoanState is the lifecycle state of a loan. Only ACTIVE and RETURNED are
// stored; OVERDUE is derived from the due date.
type LoanState string

const (
	LoanActive   LoanState = "ACTIVE"
	LoanOverdue  LoanState = "OVERDUE"
	LoanReturned LoanState = "RETURNED"
)

// Loan records a book copy lent to a user. The Book* and User* display fields
// are filled by storage reads and ignored on writes.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	UserID     int64      `json:"user_id"`
	LoanedAt   time.Time  `json:"loan_date"`
	DueAt      time.Time  `json:"expected_return_date"`
	ReturnedAt *time.Time `json:"actual_return_date"`
	State      LoanState  `json:"state"`

	DaysOverdue int `json:"days_overdue,omitempty"`

	BookTitle  string `json:"book_title,omitempty"`
	BookAuthor string `json:"book_author,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	UserEmail  string `json:"user_email,omitempty"`
}

// IsOverdue reports whether the loan is unreturned and its due date is
// strictly before now.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.State != LoanReturned && l.DueAt.Before(now)
}

// EffectiveState returns the state as observed at now.
func (l Loan) EffectiveState(now time.Time) LoanState {
	if l.IsOverdue(now) {
		return LoanOverdue
	}

	if l.State == LoanReturned {
		return LoanReturned
	}

	return LoanActive
}

// AsOf returns a copy of l with State and DaysOverdue evaluated at now.
func (l Loan) AsOf(now time.Time) Loan {
	l.State = l.EffectiveState(now)
	l.DaysOverdue = 0

	if l.State == LoanOverdue {
		l.DaysOverdue = int(math.Ceil(now.Sub(l.DueAt).Hours() / 24))
	}

	return l
}

// LoansAsOf applies AsOf to every loan in place and returns the slice.
func LoansAsOf(loans []Loan, now time.Time) []Loan {
	for i := range loans {
		loans[i] = loans[i].AsOf(now)
	}

	return loans
}
