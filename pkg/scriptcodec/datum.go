// Package scriptcodec implements the ScriptCodec (4.3): encoding and
// decoding the on-chain contract's datum and redeemer, and deriving the
// script address from a verification key. The on-chain wire format is
// bit-exact and any change here breaks contract compatibility.
package scriptcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// NewCooldownTime returns the datum's cooldown instant for a just-performed
// action: now plus the source's configured cooldown plus padMs, the
// operator-configured pad absorbing block-time skew between the off-chain
// clock that computes this instant and the on-chain slot that eventually
// observes it (spec §9: the pad must be configurable, and must exceed the
// chain's worst-case finality horizon).
func NewCooldownTime(now time.Time, cooldownMs, padMs int64) int64 {
	return now.UnixMilli() + cooldownMs + padMs
}

// ErrMalformedDatum is returned by Decode when the input does not round
// trip to an 11-field datum, e.g. a tampered or foreign UTXO (6.f).
var ErrMalformedDatum = errors.New("scriptcodec: malformed datum")

// Cooldown is the inner sub-record carried by a datum.
type Cooldown struct {
	NewCooldownTimeSeller int64
	NewCooldownTimeBuyer  int64
}

// Datum is the decoded 11-field tuple of 4.3, plus its cooldown sub-record.
type Datum struct {
	BuyerVkey                 string
	SellerVkey                string
	BlockchainIdentifier      string
	InputHash                 string
	ResultHash                string
	PayByTime                 int64
	SubmitResultTime          int64
	UnlockTime                int64
	ExternalDisputeUnlockTime int64
	CollateralReturnLovelace  int64
	State                     domain.DatumConstructor
	Cooldown                  Cooldown
}

const datumFieldCount = 12 // 11 top-level fields + 1 cooldown sub-record

// Encode renders d as a stable, pipe-delimited wire tuple. A real deployment
// would render Plutus Data / CBOR here; the field order and count are what
// the validator script depends on, and this codec preserves both bit for
// bit in the order of 4.3.
func Encode(d Datum) ([]byte, error) {
	if len(d.BuyerVkey) != 56 {
		return nil, fmt.Errorf("%w: buyer vkey must be 28 bytes hex (56 chars), got %d", ErrMalformedDatum, len(d.BuyerVkey))
	}
	if len(d.SellerVkey) != 56 {
		return nil, fmt.Errorf("%w: seller vkey must be 28 bytes hex (56 chars), got %d", ErrMalformedDatum, len(d.SellerVkey))
	}
	if len(d.BlockchainIdentifier) > 64 {
		return nil, fmt.Errorf("%w: blockchainIdentifier exceeds 64 bytes", ErrMalformedDatum)
	}

	fields := []string{
		d.BuyerVkey,
		d.SellerVkey,
		d.BlockchainIdentifier,
		d.InputHash,
		d.ResultHash,
		strconv.FormatInt(d.PayByTime, 10),
		strconv.FormatInt(d.SubmitResultTime, 10),
		strconv.FormatInt(d.UnlockTime, 10),
		strconv.FormatInt(d.ExternalDisputeUnlockTime, 10),
		strconv.FormatInt(d.CollateralReturnLovelace, 10),
		strconv.Itoa(int(d.State)),
		fmt.Sprintf("%d,%d", d.Cooldown.NewCooldownTimeSeller, d.Cooldown.NewCooldownTimeBuyer),
	}
	return []byte(strings.Join(fields, "|")), nil
}

// Decode is the inverse of Encode. It never panics: a malformed or foreign
// datum (wrong field count, unknown state constructor) returns
// ErrMalformedDatum so callers can skip the UTXO rather than crash.
func Decode(raw []byte) (Datum, error) {
	fields := strings.Split(string(raw), "|")
	if len(fields) != datumFieldCount {
		return Datum{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedDatum, datumFieldCount, len(fields))
	}

	payByTime, err1 := strconv.ParseInt(fields[5], 10, 64)
	submitResultTime, err2 := strconv.ParseInt(fields[6], 10, 64)
	unlockTime, err3 := strconv.ParseInt(fields[7], 10, 64)
	externalDisputeUnlockTime, err4 := strconv.ParseInt(fields[8], 10, 64)
	collateral, err5 := strconv.ParseInt(fields[9], 10, 64)
	stateInt, err6 := strconv.Atoi(fields[10])
	if err := firstNonNil(err1, err2, err3, err4, err5, err6); err != nil {
		return Datum{}, fmt.Errorf("%w: %v", ErrMalformedDatum, err)
	}

	state, err := decodeState(stateInt)
	if err != nil {
		return Datum{}, err
	}

	cooldownParts := strings.Split(fields[11], ",")
	if len(cooldownParts) != 2 {
		return Datum{}, fmt.Errorf("%w: malformed cooldown sub-record", ErrMalformedDatum)
	}
	seller, err7 := strconv.ParseInt(cooldownParts[0], 10, 64)
	buyer, err8 := strconv.ParseInt(cooldownParts[1], 10, 64)
	if err := firstNonNil(err7, err8); err != nil {
		return Datum{}, fmt.Errorf("%w: %v", ErrMalformedDatum, err)
	}

	return Datum{
		BuyerVkey:                 fields[0],
		SellerVkey:                fields[1],
		BlockchainIdentifier:      fields[2],
		InputHash:                 fields[3],
		ResultHash:                fields[4],
		PayByTime:                 payByTime,
		SubmitResultTime:          submitResultTime,
		UnlockTime:                unlockTime,
		ExternalDisputeUnlockTime: externalDisputeUnlockTime,
		CollateralReturnLovelace:  collateral,
		State:                     state,
		Cooldown: Cooldown{
			NewCooldownTimeSeller: seller,
			NewCooldownTimeBuyer:  buyer,
		},
	}, nil
}

// decodeState maps a raw constructor index to a domain.DatumConstructor.
// An unknown index is a decode failure, never a panic (6.f, REDESIGN FLAGS).
func decodeState(i int) (domain.DatumConstructor, error) {
	switch domain.DatumConstructor(i) {
	case domain.ConstructorFundsLocked, domain.ConstructorResultSubmitted, domain.ConstructorRefundRequested, domain.ConstructorDisputed:
		return domain.DatumConstructor(i), nil
	default:
		return 0, fmt.Errorf("%w: unknown state constructor %d", ErrMalformedDatum, i)
	}
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// VkeyHex checks that raw is a 28-byte verification key hash and returns it
// as the lower-case hex string stored on PaymentSource/WalletBase and
// embedded in datums.
func VkeyHex(raw []byte) (string, error) {
	if len(raw) != 28 {
		return "", fmt.Errorf("%w: vkey hash must be 28 bytes, got %d", ErrMalformedDatum, len(raw))
	}
	return hex.EncodeToString(raw), nil
}
