package qbo

import (
	"strings"
	"time"
)

// Date is a QuickBooks calendar date
type Date struct {
	time.Time
}

const jsonDateFMT = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(jsonDateFMT, s)
	return Date{t}, err
}

// UnmarshalJSON unmarshals from a YYYY-MM-DD date
func (d *Date) UnmarshalJSON(buf []byte) error {
	t, err := time.Parse(jsonDateFMT, strings.Trim(string(buf), `"`))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON marshals a Date to a YYYY-MM-DD date string
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(jsonDateFMT) + `"`), nil
}

// Ref is a reference to another entity by id
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// AccountBasedExpenseLineDetail books a line against an expense account
type AccountBasedExpenseLineDetail struct {
	AccountRef Ref `json:"AccountRef"`
}

// Line is a bill line
type Line struct {
	DetailType                    string                         `json:"DetailType"`
	Amount                        float64                        `json:"Amount"`
	Description                   string                         `json:"Description,omitempty"`
	AccountBasedExpenseLineDetail *AccountBasedExpenseLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
}

// Bill is the subset of the QuickBooks Bill entity the bridge writes
type Bill struct {
	VendorRef   Ref    `json:"VendorRef"`
	Line        []Line `json:"Line"`
	DueDate     *Date  `json:"DueDate,omitempty"`
	PrivateNote string `json:"PrivateNote,omitempty"`
}

// NewExpenseBill returns a bill from vendorID with one line of amount
// booked to the expense accountID
func NewExpenseBill(vendorID, accountID string, amount float64, memo string, due *Date) *Bill {
	return &Bill{
		VendorRef: Ref{Value: vendorID},
		Line: []Line{
			{
				DetailType:  "AccountBasedExpenseLineDetail",
				Amount:      amount,
				Description: memo,
				AccountBasedExpenseLineDetail: &AccountBasedExpenseLineDetail{
					AccountRef: Ref{Value: accountID},
				},
			},
		},
		DueDate:     due,
		PrivateNote: memo,
	}
}
