package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLanguage is assigned to chats on first interaction.
const DefaultLanguage = "ru"

// Chat is a group scope for users and debts.
type Chat struct {
	ID        int64
	Language  string
	CreatedAt time.Time
}

// User is a member registered in a particular chat.
type User struct {
	ID            int64
	ChatID        int64
	Username      string
	Phone         string
	PreferredBank string
	CreatedAt     time.Time
}

// Debt is the single outstanding balance between two members of a chat.
// Amount is always positive; direction is carried by CreditorID and DebtorID.
type Debt struct {
	ID          int64
	ChatID      int64
	CreditorID  int64
	DebtorID    int64
	Amount      decimal.Decimal
	Currency    Currency
	Description string
	CreatedAt   time.Time
}

// Pair returns the unordered pair of participants.
func (d Debt) Pair() Pair {
	return NewPair(d.CreditorID, d.DebtorID)
}

// Transaction is an append-only record of one completed payment leg.
type Transaction struct {
	ID         int64
	ChatID     int64
	CreditorID int64
	DebtorID   int64
	Amount     decimal.Decimal
	Currency   Currency
	CreatedAt  time.Time
}

// Pair is an unordered pair of user ids stored in ascending order.
type Pair struct {
	Low  int64
	High int64
}

// NewPair sorts a and b into a Pair.
func NewPair(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Less orders pairs by Low, then High.
func (p Pair) Less(other Pair) bool {
	if p.Low != other.Low {
		return p.Low < other.Low
	}
	return p.High < other.High
}
