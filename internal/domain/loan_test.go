package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mkrupp/library/internal/domain"
)

func TestLoan_AsOf(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	returned := now.Add(-time.Hour)

	tests := []struct {
		name        string
		loan        domain.Loan
		wantState   domain.LoanState
		wantOverdue int
	}{
		{
			name:      "active before due date",
			loan:      domain.Loan{State: domain.LoanActive, DueAt: now.Add(time.Hour)},
			wantState: domain.LoanActive,
		},
		{
			name:      "due exactly now is not overdue",
			loan:      domain.Loan{State: domain.LoanActive, DueAt: now},
			wantState: domain.LoanActive,
		},
		{
			name:        "active past due date is overdue",
			loan:        domain.Loan{State: domain.LoanActive, DueAt: now.Add(-49 * time.Hour)},
			wantState:   domain.LoanOverdue,
			wantOverdue: 3,
		},
		{
			name:      "returned late stays returned",
			loan:      domain.Loan{State: domain.LoanReturned, DueAt: now.Add(-72 * time.Hour), ReturnedAt: &returned},
			wantState: domain.LoanReturned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.loan.AsOf(now)
			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantOverdue, got.DaysOverdue)
			assert.Equal(t, tt.wantState == domain.LoanOverdue, tt.loan.IsOverdue(now))
		})
	}
}
