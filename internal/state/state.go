package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State represents a finite-state machine state.
type State string

const (
	// StateIdle indicates that the bot is waiting for the next command.
	StateIdle State = "idle"
	// StateExpenseSelecting indicates that the payer is picking who shares an expense.
	StateExpenseSelecting State = "expense_selecting"
	// StatePaymentAwaitingAmount indicates that the bot waits for "<amount> <currency>" text.
	StatePaymentAwaitingAmount State = "payment_awaiting_amount"
	// StateError indicates that the conversation failed and requires recovery.
	StateError State = "error"
)

// Key addresses one member's conversation inside one chat.
type Key struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// PendingExpense is an /expense waiting for its participants.
type PendingExpense struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Selected    []int64         `json:"selected"`
}

// Toggle flips userID in the selection.
func (p *PendingExpense) Toggle(userID int64) {
	for i, id := range p.Selected {
		if id == userID {
			p.Selected = append(p.Selected[:i], p.Selected[i+1:]...)
			return
		}
	}
	p.Selected = append(p.Selected, userID)
}

// IsSelected reports whether userID takes part in the expense.
func (p *PendingExpense) IsSelected(userID int64) bool {
	for _, id := range p.Selected {
		if id == userID {
			return true
		}
	}
	return false
}

// PendingPayment is a /pay_debt waiting for the paid amount.
type PendingPayment struct {
	CreditorID   int64  `json:"creditor_id"`
	CreditorName string `json:"creditor_name"`
}

// Data carries the flow-specific payload of a session.
type Data struct {
	Expense *PendingExpense `json:"expense,omitempty"`
	Payment *PendingPayment `json:"payment,omitempty"`
}

// Session captures the current FSM state for a chat member.
type Session struct {
	Key
	CurrentState State     `json:"current_state"`
	Data         Data      `json:"data"`
	UpdatedAt    time.Time `json:"updated_at"`
}
