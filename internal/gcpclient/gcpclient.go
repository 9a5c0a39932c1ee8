// Package gcpclient holds the bits shared by the Google Cloud REST adapters.
package gcpclient

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Options builds the client options for a Google API service. An explicit
// endpoint without an HTTP client targets an emulator, which takes no
// credentials.
func Options(endpoint string, httpClient *http.Client) []option.ClientOption {
	var opts []option.ClientOption

	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	switch {
	case httpClient != nil:
		opts = append(opts, option.WithHTTPClient(httpClient))
	case endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	}

	return opts
}

func IsNotFound(err error) bool {
	return hasCode(err, http.StatusNotFound)
}

func IsConflict(err error) bool {
	return hasCode(err, http.StatusConflict)
}

func hasCode(err error, code int) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == code
	}

	return false
}
