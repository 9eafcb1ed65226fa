package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/smileynet/shkolo/internal/cache"
)

// Fetchers wrap these sentinels so failures can be classified.
var (
	ErrAuthExpired = errors.New("refresh: authentication expired")
	ErrMalformed   = errors.New("refresh: malformed response")
)

// Class groups fetch failures by what the user can do about them.
type Class int

const (
	ClassOther       Class = iota // anything not covered below
	ClassNetwork                  // transport failure or timeout
	ClassAuthExpired              // credential rejected by the service
	ClassMalformed                // response could not be decoded
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassAuthExpired:
		return "auth-expired"
	case ClassMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// FetchError reports a failed fetch for one key. The cache is left untouched.
type FetchError struct {
	Key   cache.Key
	Class Class
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("refresh: fetching %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Classify maps a fetch error to its Class.
func Classify(err error) Class {
	var (
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, ErrAuthExpired):
		return ClassAuthExpired
	case errors.Is(err, ErrMalformed), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ClassMalformed
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return ClassNetwork
	}
	return ClassOther
}
