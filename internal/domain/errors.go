package domain

import "errors"

var (
	// ErrNotFound signals that a cache or feed has no value yet.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited signals that the upstream quote API refused the request.
	ErrRateLimited = errors.New("rate limited")
)
