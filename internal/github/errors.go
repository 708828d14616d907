package github

import (
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v68/github"

	"github.com/dshills/quorum/internal/review"
)

// Kind is the coarse cause of a failed GitHub call.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
)

// FetchError is a failed call against a pull request.
type FetchError struct {
	Owner      string
	Repo       string
	Number     int
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("github %s/%s#%d: %s (status %d): %v", e.Owner, e.Repo, e.Number, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("github %s/%s#%d: %s: %v", e.Owner, e.Repo, e.Number, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Class makes fetch failures classify as fetch_failed.
func (e *FetchError) Class() review.Class { return review.ClassFetchFailed }

// HTTPStatus is the status a server should answer with for this failure.
func (e *FetchError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// IsAuth reports whether err is a GitHub authentication failure.
func IsAuth(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindAuth
}

func wrapError(owner, repo string, number int, err error) error {
	fe := &FetchError{Owner: owner, Repo: repo, Number: number, Kind: KindUpstream, Err: err}

	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr):
		fe.Kind = KindRateLimited
		fe.StatusCode = statusOf(rateErr.Response)
	case errors.As(err, &abuseErr):
		fe.Kind = KindRateLimited
		fe.StatusCode = statusOf(abuseErr.Response)
	case errors.As(err, &respErr):
		fe.StatusCode = statusOf(respErr.Response)
		switch fe.StatusCode {
		case http.StatusNotFound:
			fe.Kind = KindNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			fe.Kind = KindAuth
		case http.StatusTooManyRequests:
			fe.Kind = KindRateLimited
		}
	}
	return fe
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
