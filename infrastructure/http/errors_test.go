package http

import (
	"dm-core/errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestHTTPError_Masks_Internal_Errors(t *testing.T) {
	req := require.New(t)

	// Given an error outside the caller visible taxonomy
	err := httpError(fmt.Errorf("badger: value log at /var/lib/dm is corrupted"))

	// Then only a generic message reaches the client
	var httpErr *echo.HTTPError
	req.ErrorAs(err, &httpErr)
	req.Equal(http.StatusInternalServerError, httpErr.Code)
	req.Equal("internal error", httpErr.Message)
}

func TestHTTPError_Keeps_Caller_Errors(t *testing.T) {
	req := require.New(t)

	err := httpError(fmt.Errorf("%w: conversation c1", errors.ErrNotFound))

	var httpErr *echo.HTTPError
	req.ErrorAs(err, &httpErr)
	req.Equal(http.StatusNotFound, httpErr.Code)
	req.Equal("not found: conversation c1", httpErr.Message)
}
