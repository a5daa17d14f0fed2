package forge

import "fmt"

// TransientError marks provider failures worth retrying by the caller:
// timeouts, rate limits and 5xx responses. No operation retries internally.
type TransientError struct {
	Provider string
	Status   int
	Message  string
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider error (status %d): %s", e.Provider, e.Status, e.Message)
}

// APIError covers definitive provider rejections (4xx other than 429).
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: provider api error (status %d): %s", e.Provider, e.Status, e.Message)
}

func statusError(provider string, status int, message string) error {
	if status == 429 || status >= 500 {
		return TransientError{Provider: provider, Status: status, Message: message}
	}
	return APIError{Provider: provider, Status: status, Message: message}
}
