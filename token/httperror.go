package token

import "fmt"

// HTTPClientError reports an error status from the Intuit oauth
// endpoints, carrying the provider's response body
type HTTPClientError struct {
	code    int
	message string
}

func (e *HTTPClientError) Error() string {
	return fmt.Sprintf("status: %d message: %s", e.code, e.message)
}

// StatusCode is the http status returned by the provider
func (e *HTTPClientError) StatusCode() int {
	return e.code
}

// Body is the response body returned by the provider
func (e *HTTPClientError) Body() string {
	return e.message
}
