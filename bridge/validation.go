package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maneframe/qbbillbridge/qbo"
)

// BillRequest is the body of POST /qb/bills
type BillRequest struct {
	VendorID  string   `json:"vendorId" validate:"required"`
	Amount    *float64 `json:"amount" validate:"required,gt=0"`
	Memo      string   `json:"memo" validate:"max=4000"`
	DueDate   string   `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	AccountID string   `json:"accountId"`
}

// Bill converts the request into a single line expense bill, booked to
// defaultAccount unless the request names an account
func (b *BillRequest) Bill(defaultAccount string) (*qbo.Bill, error) {
	account := b.AccountID
	if account == "" {
		account = defaultAccount
	}
	if account == "" {
		return nil, errors.New("no expense account configured")
	}
	var due *qbo.Date
	if b.DueDate != "" {
		d, err := qbo.ParseDate(b.DueDate)
		if err != nil {
			return nil, fmt.Errorf("dueDate: %w", err)
		}
		due = &d
	}
	return qbo.NewExpenseBill(strings.TrimSpace(b.VendorID), account, *b.Amount, b.Memo, due), nil
}

type billValidator struct {
	v *validator.Validate
}

func newBillValidator() *billValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &billValidator{v: v}
}

// check validates req, describing the first problem of each field
func (bv *billValidator) check(req *BillRequest) error {
	err := bv.v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gt":
			msgs = append(msgs, fe.Field()+" must be greater than "+fe.Param())
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be a YYYY-MM-DD date")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
