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

const otpRecordVersion = 1

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRecordCorrupt    = errors.New("otp record corrupt")
	ErrOTPBackend          = errors.New("otp store backend unavailable")
)

// OTPRecord is one outstanding numeric code keyed by account. Saving a new
// code displaces the previous one, matching the one-pending-code-per-account
// behavior of each flow.
type OTPRecord struct {
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// OTPStore persists hashed one-time codes with a TTL and a failed-attempt
// cap. The same store type serves password reset and email verification
// under different prefixes.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Save stores a fresh hashed code for the account.
func (s *OTPStore) Save(ctx context.Context, accountID string, secretHash [32]byte, ttl time.Duration) error {
	record := &OTPRecord{
		SecretHash: secretHash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

// Consume validates providedHash against the stored record. A match deletes
// the record (codes are single use). A mismatch increments the attempt
// counter; hitting maxAttempts deletes the record and reports exhaustion.
func (s *OTPStore) Consume(
	ctx context.Context,
	accountID string,
	providedHash [32]byte,
	maxAttempts int,
) error {
	const maxRetries = 4
	key := s.key(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
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
				return ErrOTPNotFound
			}

			if !internal.HashEqual(record.SecretHash, providedHash) {
				record.Attempts++
				if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrOTPAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrOTPNotFound
				}

				encoded, err := encodeOTPRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encoded, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrOTPMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrOTPNotFound
			}
			if errors.Is(err, ErrOTPNotFound) ||
				errors.Is(err, ErrOTPMismatch) ||
				errors.Is(err, ErrOTPAttemptsExceeded) ||
				errors.Is(err, ErrOTPRecordCorrupt) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrOTPBackend, err)
		}
		return nil
	}

	return ErrOTPNotFound
}

// Clear removes any outstanding code for the account.
func (s *OTPStore) Clear(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	if record == nil {
		return nil, ErrOTPRecordCorrupt
	}
	buf := bytes.NewBuffer(make([]byte, 0, 1+32+8+2))
	buf.WriteByte(otpRecordVersion)
	buf.Write(record.SecretHash[:])
	if err := binary.Write(buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	if len(data) != 1+32+8+2 || data[0] != otpRecordVersion {
		return nil, ErrOTPRecordCorrupt
	}
	record := &OTPRecord{}
	copy(record.SecretHash[:], data[1:33])
	record.ExpiresAt = int64(binary.BigEndian.Uint64(data[33:41]))
	record.Attempts = binary.BigEndian.Uint16(data[41:43])
	return record, nil
}
