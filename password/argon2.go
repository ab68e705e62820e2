package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultMaxInputBytes bounds the secret size when Config.MaxInputBytes is zero.
const DefaultMaxInputBytes = 1024

const phcPrefix = "$argon2id$"

// Cost floors. Hashes below them are rejected on both sides.
const (
	floorMemoryKB    = 8 * 1024
	floorTime        = 1
	floorParallelism = 1
	floorSaltBytes   = 16
	floorKeyBytes    = 16
)

var (
	// ErrEmptyInput is returned by Hash for an empty secret.
	ErrEmptyInput = errors.New("password: empty input")
	// ErrInputTooLong is returned when the secret exceeds the configured byte limit.
	ErrInputTooLong = errors.New("password: input too long")

	errMalformed = errors.New("password: malformed hash")
)

var b64 = base64.StdEncoding

// Config holds the argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MaxInputBytes int
}

// Argon2 hashes and verifies secrets as PHC-formatted argon2id strings.
//
// The same hasher is used for account passwords and for OTP codes, so it
// enforces no length policy of its own; callers apply their own rules.
type Argon2 struct {
	cost     cost
	saltLen  uint32
	maxInput int
}

// cost is the part of the parameters that is written into every hash.
type cost struct {
	memory      uint32
	time        uint32
	parallelism uint8
	keyLen      uint32
}

func (c cost) derive(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, c.time, c.memory, c.parallelism, c.keyLen)
}

// NewArgon2 checks cfg against the cost floors and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < floorMemoryKB:
		return nil, fmt.Errorf("password memory must be >= %d KB", floorMemoryKB)
	case cfg.Time < floorTime:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < floorParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < floorSaltBytes:
		return nil, fmt.Errorf("password salt length must be >= %d", floorSaltBytes)
	case cfg.KeyLength < floorKeyBytes:
		return nil, fmt.Errorf("password key length must be >= %d", floorKeyBytes)
	case cfg.MaxInputBytes < 0:
		return nil, errors.New("password max input bytes must be >= 0")
	}

	maxInput := cfg.MaxInputBytes
	if maxInput == 0 {
		maxInput = DefaultMaxInputBytes
	}

	return &Argon2{
		cost: cost{
			memory:      cfg.Memory,
			time:        cfg.Time,
			parallelism: cfg.Parallelism,
			keyLen:      cfg.KeyLength,
		},
		saltLen:  cfg.SaltLength,
		maxInput: maxInput,
	}, nil
}

// Hash derives a salted argon2id key from secret and encodes it as
// $argon2id$v=19$m=..,t=..,p=..$salt$key. Bytes are hashed as given.
func (a *Argon2) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyInput
	}
	if len(secret) > a.maxInput {
		return "", ErrInputTooLong
	}

	salt := make([]byte, a.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(phcPrefix)
	fmt.Fprintf(&b, "v=%d$%s$", argon2.Version, a.cost.params())
	b.WriteString(b64.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(b64.EncodeToString(a.cost.derive(secret, salt)))
	return b.String(), nil
}

// Verify reports whether secret matches encoded. Cost parameters come from
// encoded, so hashes made under an older config still verify. An error means
// encoded is malformed, never that the secret is wrong.
func (a *Argon2) Verify(secret, encoded string) (bool, error) {
	if len(secret) > a.maxInput {
		return false, ErrInputTooLong
	}

	c, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}

	got := c.derive(secret, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (c cost) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", c.memory, c.time, c.parallelism)
}

// decode splits a PHC string into cost, salt and key. The parameter segment
// must round-trip exactly, which rejects reordered or extra parameters.
func decode(encoded string) (cost, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return cost{}, nil, nil, fmt.Errorf("%w: not argon2id", errMalformed)
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 4 {
		return cost{}, nil, nil, fmt.Errorf("%w: expected 4 segments", errMalformed)
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil || version != argon2.Version {
		return cost{}, nil, nil, fmt.Errorf("%w: unsupported version %q", errMalformed, parts[0])
	}

	var c cost
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &c.memory, &c.time, &c.parallelism); err != nil || c.params() != parts[1] {
		return cost{}, nil, nil, fmt.Errorf("%w: bad parameters %q", errMalformed, parts[1])
	}
	if c.memory < floorMemoryKB || c.time < floorTime || c.parallelism < floorParallelism {
		return cost{}, nil, nil, fmt.Errorf("%w: parameters below floor", errMalformed)
	}

	salt, err := b64.DecodeString(parts[2])
	if err != nil || len(salt) < floorSaltBytes {
		return cost{}, nil, nil, fmt.Errorf("%w: bad salt", errMalformed)
	}
	key, err := b64.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return cost{}, nil, nil, fmt.Errorf("%w: bad key", errMalformed)
	}
	c.keyLen = uint32(len(key))

	return c, salt, key, nil
}
