package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"encoding/base64"
	"strconv"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinPasswordBytes is the smallest accepted password length in bytes.
	MinPasswordBytes = 10
)

// ErrPasswordTooShort is returned by Hash for passwords under
// [MinPasswordBytes].
var ErrPasswordTooShort = errors.New("password too short")

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher derives and verifies argon2id password hashes in PHC string format.
// A Hasher is immutable after construction and safe for concurrent use.
type Hasher struct {
	config Config
}

func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory below minimum")
	case cfg.Time < minTimeCost:
		return nil, errors.New("argon2 time cost below minimum")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism below minimum")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length below minimum")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length below minimum")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a fresh salted hash for the given password. Raw password
// bytes are used exactly as provided, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encodedHash and
// compares in constant time. A mismatched password returns (false, nil); the
// error is reserved for malformed hashes.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		timeCost,
		memory,
		parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func parsePHC(encodedHash string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return 0, 0, 0, nil, nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, errors.New("unsupported algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("unsupported argon2 version")
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return 0, 0, 0, nil, nil, errors.New("invalid parameter block")
	}
	m, err := parseParam(params[0], "m=")
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	t, err := parseParam(params[1], "t=")
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	p, err := parseParam(params[2], "p=")
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if p > 255 {
		return 0, 0, 0, nil, nil, errors.New("invalid parallelism")
	}

	salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("invalid salt encoding")
	}
	key, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("invalid hash encoding")
	}
	if len(salt) == 0 || len(key) == 0 {
		return 0, 0, 0, nil, nil, errors.New("empty salt or hash")
	}

	return uint32(m), uint32(t), uint8(p), salt, key, nil
}

func parseParam(s, prefix string) (uint64, error) {
	if !strings.HasPrefix(s, prefix) {
		return 0, errors.New("invalid parameter block")
	}
	v, err := strconv.ParseUint(s[len(prefix):], 10, 32)
	if err != nil {
		return 0, errors.New("invalid parameter block")
	}
	return v, nil
}
