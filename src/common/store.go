package common

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nftdrops/src/models"
	"nftdrops/src/types"

	"github.com/redis/go-redis/v9"
)

// RecordStore persists one NFTTransaction per payment reference. Writes
// replace the whole record and are last-write-wins.
type RecordStore interface {
	// Create returns the existing record unchanged when the reference is
	// already known.
	Create(ctx context.Context, rec *models.NFTTransaction) (*models.NFTTransaction, error)
	Get(ctx context.Context, paymentReference string) (*models.NFTTransaction, error)
	// UpdateStatus is true when the record was updated or already had the
	// status, false when no record exists.
	UpdateStatus(ctx context.Context, paymentReference string, status types.TransactionStatus) (bool, error)
	SetDistribution(ctx context.Context, paymentReference, txHash string) error
	// MarkVerified records that the payment behind the reference was checked.
	MarkVerified(ctx context.Context, paymentReference string, at time.Time) error
}

func prepareNew(rec *models.NFTTransaction) {
	now := time.Now().UTC()
	if rec.Flow == "" {
		rec.Flow = models.FlowForReference(rec.PaymentReference)
	}
	if rec.Status == "" {
		rec.Status = models.InitialStatus(rec.Flow)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

type RedisRecordStore struct {
	rdb *redis.Client
}

func NewRedisRecordStore(rdb *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{rdb: rdb}
}

func (s *RedisRecordStore) Create(ctx context.Context, rec *models.NFTTransaction) (*models.NFTTransaction, error) {
	prepareNew(rec)
	raw, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	created, err := s.rdb.SetNX(ctx, models.TransactionKey(rec.PaymentReference), string(raw), 0).Result()
	if err != nil {
		log.Printf("[redis] Error creating record %s: %s\n", rec.PaymentReference, err.Error())
		return nil, err
	}
	if !created {
		log.Printf("[redis] Record %s already exists\n", rec.PaymentReference)
		return s.Get(ctx, rec.PaymentReference)
	}
	return rec, nil
}

func (s *RedisRecordStore) Get(ctx context.Context, paymentReference string) (*models.NFTTransaction, error) {
	raw, err := s.rdb.Get(ctx, models.TransactionKey(paymentReference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.DecodeNFTTransaction(raw)
}

func (s *RedisRecordStore) save(ctx context.Context, rec *models.NFTTransaction) error {
	raw, err := rec.Encode()
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, models.TransactionKey(rec.PaymentReference), string(raw), 0).Err()
}

func (s *RedisRecordStore) UpdateStatus(ctx context.Context, paymentReference string, status types.TransactionStatus) (bool, error) {
	rec, err := s.Get(ctx, paymentReference)
	if errors.Is(err, types.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Status == status {
		return true, nil
	}
	if err := rec.Transition(status); err != nil {
		return false, err
	}
	if err := s.save(ctx, rec); err != nil {
		log.Printf("[redis] Error updating %s to %s: %s\n", paymentReference, status, err.Error())
		return false, err
	}
	return true, nil
}

func (s *RedisRecordStore) SetDistribution(ctx context.Context, paymentReference, txHash string) error {
	rec, err := s.Get(ctx, paymentReference)
	if err != nil {
		return err
	}
	rec.DistributionTxHash = txHash
	rec.UpdatedAt = time.Now().UTC()
	return s.save(ctx, rec)
}

func (s *RedisRecordStore) MarkVerified(ctx context.Context, paymentReference string, at time.Time) error {
	rec, err := s.Get(ctx, paymentReference)
	if err != nil {
		return err
	}
	at = at.UTC()
	rec.VerifiedAt = &at
	rec.UpdatedAt = time.Now().UTC()
	return s.save(ctx, rec)
}

// MemoryRecordStore keeps records in process memory. It backs local runs
// without Redis.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string][]byte{}}
}

func (s *MemoryRecordStore) Create(ctx context.Context, rec *models.NFTTransaction) (*models.NFTTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.records[rec.PaymentReference]; ok {
		return models.DecodeNFTTransaction(raw)
	}
	prepareNew(rec)
	raw, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	s.records[rec.PaymentReference] = raw
	return rec, nil
}

func (s *MemoryRecordStore) Get(ctx context.Context, paymentReference string) (*models.NFTTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.records[paymentReference]
	if !ok {
		return nil, types.ErrRecordNotFound
	}
	return models.DecodeNFTTransaction(raw)
}

func (s *MemoryRecordStore) put(rec *models.NFTTransaction) error {
	raw, err := rec.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.PaymentReference] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryRecordStore) UpdateStatus(ctx context.Context, paymentReference string, status types.TransactionStatus) (bool, error) {
	rec, err := s.Get(ctx, paymentReference)
	if errors.Is(err, types.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Status == status {
		return true, nil
	}
	if err := rec.Transition(status); err != nil {
		return false, err
	}
	return true, s.put(rec)
}

func (s *MemoryRecordStore) SetDistribution(ctx context.Context, paymentReference, txHash string) error {
	rec, err := s.Get(ctx, paymentReference)
	if err != nil {
		return err
	}
	rec.DistributionTxHash = txHash
	rec.UpdatedAt = time.Now().UTC()
	return s.put(rec)
}

func (s *MemoryRecordStore) MarkVerified(ctx context.Context, paymentReference string, at time.Time) error {
	rec, err := s.Get(ctx, paymentReference)
	if err != nil {
		return err
	}
	at = at.UTC()
	rec.VerifiedAt = &at
	rec.UpdatedAt = time.Now().UTC()
	return s.put(rec)
}

func (s *MemoryRecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
