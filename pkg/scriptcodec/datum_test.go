package scriptcodec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

func TestNewCooldownTimeAddsPad(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	got := NewCooldownTime(now, 5*60*1000, 20*60*1000)
	assert.EqualValues(t, now.UnixMilli()+5*60*1000+20*60*1000, got)
}

func sampleDatum() Datum {
	return Datum{
		BuyerVkey:                 strings.Repeat("a", 56),
		SellerVkey:                strings.Repeat("b", 56),
		BlockchainIdentifier:      "bc-id-1",
		InputHash:                 "inputhash",
		ResultHash:                "",
		PayByTime:                 1000,
		SubmitResultTime:          2000,
		UnlockTime:                3000,
		ExternalDisputeUnlockTime: 4000,
		CollateralReturnLovelace:  3_000_000,
		State:                     domain.ConstructorFundsLocked,
		Cooldown:                  Cooldown{NewCooldownTimeSeller: 10, NewCooldownTimeBuyer: 20},
	}
}

func TestDatumRoundTrip(t *testing.T) {
	d := sampleDatum()
	raw, err := Encode(d)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDecodeRejectsWrongFieldCount(t *testing.T) {
	_, err := Decode([]byte("a|b|c"))
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestDecodeRejectsUnknownStateConstructor(t *testing.T) {
	d := sampleDatum()
	d.State = domain.DatumConstructor(99)
	raw, err := Encode(d)
	require.NoError(t, err)

	_, err = Decode(raw)
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestEncodeRejectsOversizedBlockchainIdentifier(t *testing.T) {
	d := sampleDatum()
	d.BlockchainIdentifier = strings.Repeat("x", 65)
	_, err := Encode(d)
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestEncodeRejectsShortVkey(t *testing.T) {
	d := sampleDatum()
	d.BuyerVkey = "abc"
	_, err := Encode(d)
	assert.ErrorIs(t, err, ErrMalformedDatum)
}
