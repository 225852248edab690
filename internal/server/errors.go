package server

import (
	"errors"

	"github.com/brynmoore/streamstore/internal/server/dto"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

// apiErrorFor maps a storeerr.Error to the HTTP-facing shape in dto, per the
// seven-kind taxonomy in spec.md §7.
func apiErrorFor(err error) *dto.APIError {
	var se *storeerr.Error
	if !errors.As(err, &se) {
		return dto.Io("internal error", err)
	}
	switch se.Kind {
	case storeerr.InvalidProperty:
		return dto.InvalidProperty(se.Error())
	case storeerr.PropertyTooLarge:
		return dto.PropertyTooLarge(se.Error())
	case storeerr.UnterminatedProperty:
		return dto.UnterminatedProperty(se.Error())
	case storeerr.VersionConflict:
		return dto.VersionConflict(se.Error())
	case storeerr.Busy:
		return dto.Busy(se.Error())
	case storeerr.NotFound:
		return dto.NotFound(se.Error())
	default:
		return dto.Io(se.Error(), se.Unwrap())
	}
}
