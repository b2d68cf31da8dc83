package models

import (
	"errors"
	"testing"
	"time"

	"nftdrops/src/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cryptoRef = "0x8a2f0c5e3b1d4a6f7e9c0b2d4f6a8c0e2b4d6f8a0c2e4b6d8f0a2c4e6b8d0f2a"

func TestTransitionsNeverMoveBackward(t *testing.T) {
	order := map[types.TransactionStatus]int{
		types.TX_PENDING:     0,
		types.TX_CONFIRMED:   1,
		types.TX_FAILED:      1,
		types.EMAIL_SENT:     2,
		types.EMAIL_FAILED:   2,
		types.NFT_DOWNLOADED: 3,
	}
	for flow, edges := range transitions {
		for from, targets := range edges {
			for _, to := range targets {
				retry := from == types.EMAIL_FAILED && to == types.EMAIL_SENT
				if retry {
					continue
				}
				assert.Greaterf(t, order[to], order[from], "%s flow: %s -> %s moves backward", flow, from, to)
			}
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		flow types.PaymentFlow
		from types.TransactionStatus
		to   types.TransactionStatus
		ok   bool
	}{
		{"pending to confirmed", types.FLOW_CRYPTO, types.TX_PENDING, types.TX_CONFIRMED, true},
		{"pending to failed", types.FLOW_CRYPTO, types.TX_PENDING, types.TX_FAILED, true},
		{"failed is terminal", types.FLOW_CRYPTO, types.TX_FAILED, types.TX_CONFIRMED, false},
		{"email retry", types.FLOW_CRYPTO, types.EMAIL_FAILED, types.EMAIL_SENT, true},
		{"sent cannot fail again", types.FLOW_CRYPTO, types.EMAIL_SENT, types.EMAIL_FAILED, false},
		{"downloaded is terminal", types.FLOW_CRYPTO, types.NFT_DOWNLOADED, types.EMAIL_SENT, false},
		{"confirmed back to pending", types.FLOW_CRYPTO, types.TX_CONFIRMED, types.TX_PENDING, false},
		{"same status is a no-op", types.FLOW_CRYPTO, types.EMAIL_SENT, types.EMAIL_SENT, true},
		{"wallet delivery skips email", types.FLOW_FIAT, types.TX_CONFIRMED, types.NFT_DOWNLOADED, true},
		{"fiat has no failed state", types.FLOW_FIAT, types.TX_CONFIRMED, types.TX_FAILED, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &NFTTransaction{Flow: tt.flow, Status: tt.from}
			assert.Equal(t, tt.ok, rec.CanTransition(tt.to))
		})
	}
}

func TestTransitionWrapsSentinel(t *testing.T) {
	rec := &NFTTransaction{Flow: types.FLOW_CRYPTO, Status: types.NFT_DOWNLOADED}
	err := rec.Transition(types.EMAIL_SENT)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))
	assert.Equal(t, types.NFT_DOWNLOADED, rec.Status)
	assert.True(t, rec.IsTerminal())
}

func TestDecodeMigratesLegacyRecords(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("crypto reference", func(t *testing.T) {
		raw := []byte(`{"paymentReference":"` + cryptoRef + `","recipient":"buyer@example.com","tokenId":"3","downloadCode":"abc","status":"EMAIL_SENT","createdAt":"2024-03-01T10:00:00Z"}`)
		rec, err := DecodeNFTTransaction(raw)
		require.NoError(t, err)
		assert.Equal(t, CurrentSchemaVersion, rec.SchemaVersion)
		assert.Equal(t, types.FLOW_CRYPTO, rec.Flow)
		assert.Equal(t, created, rec.UpdatedAt)
	})

	t.Run("stripe reference", func(t *testing.T) {
		raw := []byte(`{"paymentReference":"pi_3PabcXYZ","recipient":"buyer@example.com","tokenId":"3","status":"EMAIL_FAILED","createdAt":"2024-03-01T10:00:00Z"}`)
		rec, err := DecodeNFTTransaction(raw)
		require.NoError(t, err)
		assert.Equal(t, types.FLOW_FIAT, rec.Flow)
		assert.True(t, rec.CanTransition(types.EMAIL_SENT))
	})

	t.Run("pending gift keeps crypto edges", func(t *testing.T) {
		raw := []byte(`{"paymentReference":"gift-42","recipient":"buyer@example.com","tokenId":"1","status":"TX_PENDING","createdAt":"2024-03-01T10:00:00Z"}`)
		rec, err := DecodeNFTTransaction(raw)
		require.NoError(t, err)
		assert.Equal(t, types.FLOW_CRYPTO, rec.Flow)
	})

	t.Run("current records are untouched", func(t *testing.T) {
		rec := &NFTTransaction{PaymentReference: "pi_1", Flow: types.FLOW_FIAT, Status: types.TX_CONFIRMED, CreatedAt: created, UpdatedAt: created}
		raw, err := rec.Encode()
		require.NoError(t, err)
		decoded, err := DecodeNFTTransaction(raw)
		require.NoError(t, err)
		assert.Equal(t, rec, decoded)
	})
}

func TestValidInitialStatus(t *testing.T) {
	assert.True(t, ValidInitialStatus(types.FLOW_CRYPTO, types.TX_PENDING))
	assert.False(t, ValidInitialStatus(types.FLOW_CRYPTO, types.TX_CONFIRMED))
	assert.False(t, ValidInitialStatus(types.FLOW_CRYPTO, types.EMAIL_SENT))
	assert.False(t, ValidInitialStatus(types.FLOW_FIAT, types.TX_PENDING))
	assert.True(t, ValidInitialStatus(types.FLOW_FIAT, types.EMAIL_SENT))
	assert.False(t, ValidInitialStatus(types.FLOW_FIAT, types.TransactionStatus("SHIPPED")))
}
