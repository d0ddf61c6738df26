package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgertrack/authkit/internal"
)

const refreshRecordVersion = 1

var (
	ErrRefreshNotFound      = errors.New("refresh record not found")
	ErrRefreshMismatch      = errors.New("refresh token mismatch")
	ErrRefreshRecordExpired = errors.New("refresh record expired")
	ErrRefreshRecordCorrupt = errors.New("refresh record corrupt")
	ErrRefreshBackend       = errors.New("refresh registry backend unavailable")
)

// RefreshRecord is the single active refresh credential for an account.
// Only the SHA-256 of the token string is stored.
type RefreshRecord struct {
	TokenHash [32]byte
	ExpiresAt int64
}

// RefreshRegistry keeps at most one refresh record per account under
// rt:<accountID>. Keying by account (rather than by session) is what makes
// issuing a new token displace all prior ones.
type RefreshRegistry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshRegistry(redisClient redis.UniversalClient, prefix string) *RefreshRegistry {
	if prefix == "" {
		prefix = "rt"
	}
	return &RefreshRegistry{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RefreshRegistry) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Replace stores a new record for the account, displacing any prior one.
func (s *RefreshRegistry) Replace(ctx context.Context, accountID string, record *RefreshRecord) error {
	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}
	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrRefreshRecordExpired
	}
	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	return nil
}

// Rotate atomically swaps the stored record for a new one, but only when the
// stored hash matches providedHash. Of two concurrent rotations with the same
// presented token, exactly one can win; the loser observes a mismatch.
//
// A mismatch means the presented token was already rotated away (replay), so
// the record is deleted as a precaution: every outstanding refresh credential
// for the account dies and a full re-login is forced.
func (s *RefreshRegistry) Rotate(
	ctx context.Context,
	accountID string,
	providedHash [32]byte,
	next *RefreshRecord,
) error {
	const maxRetries = 4
	key := s.key(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRefreshRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRefreshRecordExpired
			}

			if !internal.HashEqual(record.TokenHash, providedHash) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRefreshMismatch
			}

			encoded, err := encodeRefreshRecord(next)
			if err != nil {
				return err
			}
			ttl := time.Until(time.Unix(next.ExpiresAt, 0))
			if ttl <= 0 {
				return ErrRefreshRecordExpired
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrRefreshNotFound
			}
			if errors.Is(err, ErrRefreshMismatch) ||
				errors.Is(err, ErrRefreshRecordExpired) ||
				errors.Is(err, ErrRefreshRecordCorrupt) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrRefreshBackend, err)
		}
		return nil
	}

	return ErrRefreshMismatch
}

// Revoke deletes the account's record. Deleting a missing record is not an
// error.
func (s *RefreshRegistry) Revoke(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	return nil
}

// Get returns the current record, treating an expired one as absent and
// purging it.
func (s *RefreshRegistry) Get(ctx context.Context, accountID string) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshBackend, err)
	}
	record, err := decodeRefreshRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(accountID)).Result()
		return nil, ErrRefreshNotFound
	}
	return record, nil
}

func encodeRefreshRecord(record *RefreshRecord) ([]byte, error) {
	if record == nil {
		return nil, ErrRefreshRecordCorrupt
	}
	buf := bytes.NewBuffer(make([]byte, 0, 1+32+8))
	buf.WriteByte(refreshRecordVersion)
	buf.Write(record.TokenHash[:])
	if err := binary.Write(buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	if len(data) != 1+32+8 || data[0] != refreshRecordVersion {
		return nil, ErrRefreshRecordCorrupt
	}
	record := &RefreshRecord{}
	copy(record.TokenHash[:], data[1:33])
	record.ExpiresAt = int64(binary.BigEndian.Uint64(data[33:41]))
	return record, nil
}
