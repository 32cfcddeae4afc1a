// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"golang.org/x/oauth2"
)

const cLoginCmd = "azacct login"

var (
	// ErrNotSignedIn indicates that no credential is stored for the selected
	// environment, so a silent sign-in cannot be attempted.
	ErrNotSignedIn = fmt.Errorf("not signed in, run `%s` to sign in", cLoginCmd)

	// ErrOfflineCancelled indicates the user chose to cancel sign-in while
	// the network was unreachable.
	ErrOfflineCancelled = errors.New("offline: sign-in cancelled")

	// ErrMalformedStoredCredentials indicates a stored structured credential
	// failed to decode into the expected shape.
	ErrMalformedStoredCredentials = errors.New("stored credentials are invalid")

	// ErrStoredCredentialExchange indicates a stored credential decoded fine
	// but the identity provider rejected the exchange.
	ErrStoredCredentialExchange = errors.New("using stored credentials failed")

	// ErrRedirectListenerUnavailable indicates the local redirect listener
	// for the browser flow could not be started.
	ErrRedirectListenerUnavailable = errors.New("local redirect listener unavailable")
)

const authFailedPrefix string = "failed to authenticate"

// AadErrorResponse is an error response from Azure Active Directory.
//
// See https://www.rfc-editor.org/rfc/rfc6749#section-5.2 for the OAuth 2.0
// spec, and https://learn.microsoft.com/entra/identity-platform/reference-error-codes
// for AAD error codes.
type AadErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	Timestamp        string `json:"timestamp"`
	TraceId          string `json:"trace_id"`
	CorrelationId    string `json:"correlation_id"`
	ErrorUri         string `json:"error_uri"`
}

// AuthFailedError indicates a token acquisition request has failed. It wraps
// the raw error from the token endpoint and surfaces the parsed AAD error
// response when one is available.
type AuthFailedError struct {
	// The HTTP response motivating the error, if available
	rawResp *http.Response
	// The unmarshaled error response, if available
	parsed *AadErrorResponse

	innerErr error
}

func newAuthFailedError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	var authFailedErr *AuthFailedError
	var res *http.Response
	if errors.As(err, &retrieveErr) {
		res = retrieveErr.Response
	} else if errors.As(err, &authFailedErr) { // in case this is re-thrown in a retry loop
		res = authFailedErr.rawResp
	}

	e := &AuthFailedError{rawResp: res, innerErr: err}
	e.parseResponse()
	return e
}

func (e *AuthFailedError) parseResponse() {
	if e.rawResp == nil {
		return
	}

	body, err := io.ReadAll(e.rawResp.Body)
	e.rawResp.Body.Close()
	if err != nil {
		log.Printf("error reading aad response body: %v", err)
		return
	}
	e.rawResp.Body = io.NopCloser(bytes.NewReader(body))

	var er AadErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		log.Printf("parsing aad response body: %v", err)
		return
	}

	e.parsed = &er
}

func (e *AuthFailedError) Unwrap() error {
	return e.innerErr
}

func (e *AuthFailedError) Error() string {
	if e.parsed == nil { // non-http or unparsable error, append the inner error
		return fmt.Sprintf("%s: %s", authFailedPrefix, e.innerErr.Error())
	}

	// ErrorDescription contains multiline messaging that has TraceID,
	// CorrelationID, and other useful information embedded in it.
	return fmt.Sprintf("%s:\n(%s) %s\n", authFailedPrefix, e.parsed.Error, e.parsed.ErrorDescription)
}

// Response returns the parsed AAD error response, if one was available.
func (e *AuthFailedError) Response() *AadErrorResponse {
	return e.parsed
}

// ClassifyError maps an error to the sanitized classification reported in
// telemetry. Unclassified errors yield an empty string and are reported with
// a best-effort "failure" outcome instead.
func ClassifyError(err error) string {
	var authFailed *AuthFailedError

	switch {
	case errors.Is(err, ErrOfflineCancelled):
		return "offlineCancelled"
	case errors.Is(err, ErrNotSignedIn):
		return "notSignedIn"
	case errors.Is(err, ErrMalformedStoredCredentials):
		return "malformedStoredCredentials"
	case errors.Is(err, ErrStoredCredentialExchange):
		return "storedCredentialExchangeFailed"
	case errors.As(err, &authFailed):
		return "tokenAcquisitionFailed"
	}

	return ""
}
