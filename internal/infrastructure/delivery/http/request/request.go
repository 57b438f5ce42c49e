// Package request defines and validates HTTP request payloads.
package request

import (
	"clipd/internal/entity"
	"clipd/internal/errs"
	"clipd/pkg/urls"
)

// StartDownload is the body of POST /v1/downloads.
type StartDownload struct {
	URL     string         `json:"url"`
	Options entity.Options `json:"options"`
}

func (s *StartDownload) Validate() error {
	if !urls.IsURLValid(s.URL) {
		return errs.ErrInvalidURL
	}

	return nil
}

// SetMaxConcurrent is the body of PUT /v1/settings/max-concurrent.
type SetMaxConcurrent struct {
	MaxConcurrent int `json:"maxConcurrent"`
}

func (s *SetMaxConcurrent) Validate() error {
	if s.MaxConcurrent < 1 {
		return errs.ErrInvalidMaxConcurrent
	}

	return nil
}
