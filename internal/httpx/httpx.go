// Package httpx holds the shared resty client setup and the error type for
// third-party HTTP services.
package httpx

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ServiceError is a failed call to an external service.
type ServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsServiceError reports whether err came from an external service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// NewClient returns a JSON client bound to baseURL with a hard timeout.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
}

// Check converts a transport error or non-2xx response into a ServiceError.
func Check(service string, resp *resty.Response, err error) error {
	if err != nil {
		return &ServiceError{Service: service, Err: err}
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return &ServiceError{Service: service, StatusCode: resp.StatusCode(), Err: errors.New(body)}
	}
	return nil
}
