package domain

import "errors"

var (
	ErrQuotesNotFound = errors.New("quotes not found")
	ErrFetchFailed    = errors.New("feed fetch failed")
	ErrStorageFailure = errors.New("storage failure")
)
