package services

import (
	"dm-core/errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// validateStruct maps validator failures onto ErrInvalidArgument.
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}

// newID is time ordered so ties on the timestamp still sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// now is truncated to the precision every storage driver keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
