package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"nftdrops/src/models"
	"nftdrops/src/types"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedSent = `{"schemaVersion":2,"paymentReference":"pi_123","flow":"fiat","recipient":"fan@example.com","tokenId":"1","status":"EMAIL_SENT","createdAt":"2024-05-01T10:00:00Z"}`

func TestRedisRecordStoreCreateIsIdempotent(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)
	ctx := context.Background()

	mock.Regexp().ExpectSetNX("nft_tx:pi_123", `"paymentReference":"pi_123".*"status":"TX_CONFIRMED"`, 0).SetVal(true)
	rec, err := store.Create(ctx, &models.NFTTransaction{PaymentReference: "pi_123", Recipient: fanEmail, TokenID: "1"})
	require.NoError(t, err)
	assert.Equal(t, types.FLOW_FIAT, rec.Flow)
	assert.Equal(t, types.TX_CONFIRMED, rec.Status)
	assert.Equal(t, models.CurrentSchemaVersion, rec.SchemaVersion)

	mock.Regexp().ExpectSetNX("nft_tx:pi_123", `"recipient":"other@example.com"`, 0).SetVal(false)
	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	again, err := store.Create(ctx, &models.NFTTransaction{PaymentReference: "pi_123", Recipient: "other@example.com", TokenID: "1"})
	require.NoError(t, err)
	assert.Equal(t, fanEmail, again.Recipient)
	assert.Equal(t, types.EMAIL_SENT, again.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecordStoreCryptoRecordStartsPending(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)

	mock.Regexp().ExpectSetNX("nft_tx:"+paymentHash, `"flow":"crypto".*"status":"TX_PENDING"`, 0).SetVal(true)
	rec, err := store.Create(context.Background(), &models.NFTTransaction{PaymentReference: paymentHash, Recipient: walletAddr, TokenID: "1"})
	require.NoError(t, err)
	assert.Equal(t, types.TX_PENDING, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecordStoreUpdateStatus(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)
	ctx := context.Background()

	// equal status is a no-op
	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	ok, err := store.UpdateStatus(ctx, "pi_123", types.EMAIL_SENT)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	mock.Regexp().ExpectSet("nft_tx:pi_123", `"status":"NFT_DOWNLOADED"`, 0).SetVal("OK")
	ok, err = store.UpdateStatus(ctx, "pi_123", types.NFT_DOWNLOADED)
	require.NoError(t, err)
	assert.True(t, ok)

	// backwards
	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	ok, err = store.UpdateStatus(ctx, "pi_123", types.TX_CONFIRMED)
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))
	assert.False(t, ok)

	mock.ExpectGet("nft_tx:pi_404").RedisNil()
	ok, err = store.UpdateStatus(ctx, "pi_404", types.EMAIL_SENT)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecordStoreMigratesLegacyRecords(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)

	legacy := `{"paymentReference":"` + paymentHash + `","recipient":"fan@example.com","tokenId":"2","downloadCode":"abc","status":"TX_CONFIRMED","createdAt":"2023-11-02T09:30:00Z"}`
	mock.ExpectGet("nft_tx:" + paymentHash).SetVal(legacy)
	rec, err := store.Get(context.Background(), paymentHash)
	require.NoError(t, err)
	assert.Equal(t, models.CurrentSchemaVersion, rec.SchemaVersion)
	assert.Equal(t, types.FLOW_CRYPTO, rec.Flow)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	mock.ExpectGet("nft_tx:missing").RedisNil()
	_, err = store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrRecordNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecordStoreSetDistribution(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)

	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	mock.Regexp().ExpectSet("nft_tx:pi_123", `"distributionTxHash":"0xbeef"`, 0).SetVal("OK")
	require.NoError(t, store.SetDistribution(context.Background(), "pi_123", "0xbeef"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecordStoreMarkVerified(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisRecordStore(rdb)
	at := time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)

	mock.ExpectGet("nft_tx:pi_123").SetVal(storedSent)
	mock.Regexp().ExpectSet("nft_tx:pi_123", `"status":"EMAIL_SENT".*"verifiedAt":"2024-05-01T10:05:00Z"`, 0).SetVal("OK")
	require.NoError(t, store.MarkVerified(context.Background(), "pi_123", at))

	mock.ExpectGet("nft_tx:pi_404").RedisNil()
	err := store.MarkVerified(context.Background(), "pi_404", at)
	assert.True(t, errors.Is(err, types.ErrRecordNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRecordStore(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	first, err := store.Create(ctx, &models.NFTTransaction{PaymentReference: "pi_1", Recipient: fanEmail, TokenID: "1", DownloadCode: "code-1"})
	require.NoError(t, err)
	second, err := store.Create(ctx, &models.NFTTransaction{PaymentReference: "pi_1", Recipient: "other@example.com", TokenID: "9", DownloadCode: "code-2"})
	require.NoError(t, err)
	assert.Equal(t, first.Recipient, second.Recipient)
	assert.Equal(t, "code-1", second.DownloadCode)
	assert.Equal(t, 1, store.Len())

	ok, err := store.UpdateStatus(ctx, "pi_1", types.EMAIL_FAILED)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.UpdateStatus(ctx, "pi_1", types.EMAIL_SENT)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = store.UpdateStatus(ctx, "pi_1", types.EMAIL_FAILED)
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	rec, _ := store.Get(ctx, "pi_1")
	assert.Equal(t, types.EMAIL_SENT, rec.Status)
}

func TestMemoryRecordStoreMarkVerified(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	_, err := store.Create(ctx, &models.NFTTransaction{PaymentReference: paymentHash, Recipient: walletAddr, TokenID: "1"})
	require.NoError(t, err)
	rec, _ := store.Get(ctx, paymentHash)
	assert.False(t, rec.Verified())

	require.NoError(t, store.MarkVerified(ctx, paymentHash, time.Now()))
	rec, _ = store.Get(ctx, paymentHash)
	assert.True(t, rec.Verified())
	assert.Equal(t, types.TX_PENDING, rec.Status)
}
