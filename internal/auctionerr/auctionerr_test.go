package auctionerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefinedErrorStillMatchesSentinel(t *testing.T) {
	err := ErrBidTooLow.Withf("bid must be higher than current price (%s)", "150.00")

	assert.ErrorIs(t, err, ErrBidTooLow)
	assert.NotErrorIs(t, err, ErrInvalidPrecision)
	assert.Equal(t, "bid must be higher than current price (150.00)", err.Error())
	assert.Equal(t, KindBusinessRule, KindOf(err))
	assert.Equal(t, "bid_too_low", CodeOf(fmt.Errorf("place bid: %w", err)))
}

func TestInternalWrapsUntypedErrors(t *testing.T) {
	assert.NoError(t, Internal(nil))

	cause := errors.New("connection reset")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error: connection reset", err.Error())

	assert.Same(t, ErrAuctionNotFound, Internal(ErrAuctionNotFound))
}

func TestKindOfUntypedError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal_error", CodeOf(errors.New("boom")))
	assert.Equal(t, "not_found", KindOf(ErrAuctionNotFound).String())
	assert.Equal(t, KindValidation, KindOf(Invalid("end_time %s", "missing")))
}
