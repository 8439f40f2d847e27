package errx

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// WrapGorm maps archive database errors to the unified Error type.
func WrapGorm(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(err, http.StatusNotFound, ArchiveNotFoundMessage)
	}

	return New(err, http.StatusBadGateway, ArchiveErrorMessage)
}
