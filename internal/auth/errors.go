package auth

import "fmt"

// LoginHint tells the operator how to provision ambient credentials.
const LoginHint = "run `gcloud auth application-default login` or pass --access-token"

// Error reports that no usable bearer token could be obtained. It is fatal
// to the request that needed the token.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s failed (%s)", e.Op, LoginHint)
	}
	return fmt.Sprintf("auth: %s: %v (%s)", e.Op, e.Err, LoginHint)
}

func (e *Error) Unwrap() error {
	return e.Err
}
