package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// Get performs a GET request to the specified URL with query parameters
	// and headers. The context bounds the whole call including retries.
	// Returns the response body as bytes or an error.
	Get(ctx context.Context, url string, params map[string]string, headers map[string]string) ([]byte, error)

	// -----------------------------------------------------------------------------

	// PostForm performs a form-encoded POST request.
	PostForm(ctx context.Context, url string, form map[string]string, headers map[string]string) ([]byte, error)
}
