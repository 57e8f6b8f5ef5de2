package flow

import "errors"

// Terminal flow errors. None of these are retried by the flow itself;
// retrying is a user action that restarts the whole flow.
var (
	// ErrInitiation indicates the authorization URL could not be obtained.
	ErrInitiation = errors.New("could not obtain authorization URL")

	// ErrPopupBlocked indicates the browser window could not be opened.
	ErrPopupBlocked = errors.New("browser window could not be opened")

	// ErrUserCancelled indicates the browser window was closed before a
	// result arrived.
	ErrUserCancelled = errors.New("authorization window closed before completion")

	// ErrTimeout indicates neither a result nor a window closure was seen
	// within the flow deadline.
	ErrTimeout = errors.New("authorization timed out")

	// ErrMalformedResult indicates the callback payload was unparseable or
	// carried an unrecognized discriminant.
	ErrMalformedResult = errors.New("malformed authorization result")

	// ErrAuthorizationFailed indicates the provider reported an error
	// through the callback.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrTokenMissing indicates the result parsed but carried no usable
	// token field.
	ErrTokenMissing = errors.New("authorization result carries no token")

	// ErrExchange indicates the code-for-token round trip to the backend
	// failed. The code may be single-use, so the flow is not resumable.
	ErrExchange = errors.New("token exchange failed")

	// ErrAccountFetch indicates the token was obtained but the follow-up
	// account listing failed. Token acquisition and account listing are
	// independent concerns; this error never discards the token.
	ErrAccountFetch = errors.New("account listing failed")
)
