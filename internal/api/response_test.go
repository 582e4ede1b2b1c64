package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heirloomhq/heirloom/internal/apperr"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: message is required", apperr.ErrValidation), http.StatusBadRequest, "validation"},
		{fmt.Errorf("%w: unknown api key", apperr.ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: admin only", apperr.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: portrait", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: embed batch", apperr.ErrProvider), http.StatusBadGateway, "provider_error"},
		{fmt.Errorf("%w: insert", apperr.ErrStorage), http.StatusInternalServerError, "storage_error"},
		{fmt.Errorf("something unclassified"), http.StatusInternalServerError, "storage_error"},
	}

	for _, c := range cases {
		status, code := errorStatus(c.err)
		assert.Equal(t, c.status, status, "status for %v", c.err)
		assert.Equal(t, c.code, code, "code for %v", c.err)
	}
}
