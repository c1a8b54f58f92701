package utils

import (
	"errors"
)

type ChainTrailError struct {
	Code        string
	Description string
	Details     string
}

var knownErrors = Set[string]{}

func NewChainTrailError(code string, description string) ChainTrailError {
	if knownErrors.Has(code) {
		panic("Duplicate error: " + code)
	}
	knownErrors.Add(code)
	return ChainTrailError{
		Code:        code,
		Description: description,
	}
}

func (err ChainTrailError) Error() string {
	var text = err.Code
	if err.Description != "" {
		text = text + " - " + err.Description
	}
	if err.Details != "" {
		text = text + " : " + err.Details
	}
	return text
}

func (err ChainTrailError) Is(target error) bool {
	var chainTrailErrorTarget ChainTrailError
	if errors.As(target, &chainTrailErrorTarget) {
		return chainTrailErrorTarget.Code == err.Code
	} else {
		return false
	}
}

func (err ChainTrailError) AddDetails(details string) ChainTrailError {
	if err.Details != "" {
		panic("Cannot re-add details to an error")
	}
	newErr := err
	newErr.Details = details
	return newErr
}
