package qbo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FaultDetail is one error of a QuickBooks fault
type FaultDetail struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element"`
}

// FaultError is a non-2xx api response; Body is the raw response
type FaultError struct {
	StatusCode int
	Type       string
	Errors     []FaultDetail
	Body       []byte
}

func (e *FaultError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("quickbooks api returned status %d: %s", e.StatusCode, e.Body)
	}
	msgs := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		msgs[i] = fmt.Sprintf("(%s) %s", d.Code, d.Message)
		if d.Detail != "" {
			msgs[i] += ": " + d.Detail
		}
	}
	return fmt.Sprintf("quickbooks api %s status %d: %s", e.Type, e.StatusCode, strings.Join(msgs, "; "))
}

// decodeFault builds a FaultError from an error response, tolerating
// bodies that are not faults
func decodeFault(resp *Response) *FaultError {
	fe := &FaultError{StatusCode: resp.StatusCode, Body: resp.Body}
	var qbErr struct {
		Fault struct {
			Error []FaultDetail `json:"Error"`
			Type  string        `json:"type"`
		} `json:"Fault"`
	}
	if err := json.Unmarshal(resp.Body, &qbErr); err == nil {
		fe.Type = qbErr.Fault.Type
		fe.Errors = qbErr.Fault.Error
	}
	return fe
}
