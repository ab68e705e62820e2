package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1
	otpSweepBatch      = 256
	otpSweepMaxBatches = 64
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPSuperseded       = errors.New("otp record superseded")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// markVerifiedLua flips the verified byte only if the record is byte-identical
// to what the caller read, then drops the email from the sweep index.
// KEYS[1] = record key, KEYS[2] = expiry index
// ARGV[1] = expected record bytes, ARGV[2] = retention ms, ARGV[3] = email
var markVerifiedLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if data ~= ARGV[1] then
  return {err='superseded'}
end

local newData = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
redis.call('SET', KEYS[1], newData, 'PX', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[3])
return 1
`)

// recordMismatchLua counts a failed guess against an unchanged record and
// deletes it once the limit is reached.
// KEYS[1] = record key, KEYS[2] = expiry index
// ARGV[1] = expected record bytes, ARGV[2] = max attempts, ARGV[3] = email
var recordMismatchLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if data ~= ARGV[1] then
  return {err='superseded'}
end

local maxAttempts = tonumber(ARGV[2])
local attempts = string.byte(data, 3) * 256 + string.byte(data, 4) + 1
if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], ARGV[3])
  return {err='attempts_exceeded'}
end

local newData = string.sub(data, 1, 2) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 5)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], newData)
end
return attempts
`)

// deleteIfUnchangedLua removes a record only if nobody replaced it since it was read.
// KEYS[1] = record key, KEYS[2] = expiry index
// ARGV[1] = expected record bytes, ARGV[2] = email
var deleteIfUnchangedLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if data and data == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// sweepOTPLua walks one batch of the expiry index below now and deletes
// records that are still unverified and past expiresAt. Record keys are
// derived from index members, so the script assumes a non-clustered Redis.
// KEYS[1] = expiry index
// ARGV[1] = now unix ms, ARGV[2] = batch size, ARGV[3] = record key prefix
//
// Returns {deleted, scanned}.
var sweepOTPLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local deleted = 0

for _, email in ipairs(members) do
  local key = ARGV[3] .. email
  local data = redis.call('GET', key)
  if not data or string.byte(data, 1) ~= 1 then
    redis.call('ZREM', KEYS[1], email)
  elseif string.byte(data, 2) ~= 0 then
    redis.call('ZREM', KEYS[1], email)
  else
    local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 5, 12)
    local expiresAt = e0
    for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
      expiresAt = expiresAt * 256 + b
    end
    if expiresAt < now then
      redis.call('DEL', key)
      deleted = deleted + 1
    end
    redis.call('ZREM', KEYS[1], email)
  end
end

return {deleted, #members}
`)

// OTPRecord is one pending or verified code for an email address.
type OTPRecord struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Verified  bool
	Attempts  uint16

	raw []byte
}

// Expired reports whether the record's logical expiry is strictly before now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// OTPStore keeps at most one OTP record per email in Redis plus a sorted-set
// expiry index used by the sweeper.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "tso"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) recordPrefix() string {
	return s.prefix + ":rec:"
}

func (s *OTPStore) key(email string) string {
	return s.recordPrefix() + email
}

func (s *OTPStore) indexKey() string {
	return s.prefix + ":expiry"
}

// Replace deletes any existing record for the email and writes record in a
// single MULTI, so readers never observe two records for one address.
func (s *OTPStore) Replace(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	key := s.key(record.Email)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Set(ctx, key, encoded, ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(record.ExpiresAt.UnixMilli()),
			Member: record.Email,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	record.raw = encoded
	return nil
}

// Get returns the current record for email, or ErrOTPNotFound.
func (s *OTPStore) Get(ctx context.Context, email string) (*OTPRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	record, err := decodeOTPRecord(data)
	if err != nil {
		return nil, ErrOTPNotFound
	}
	record.Email = email
	record.raw = data
	return record, nil
}

// MarkVerified sets verified=true on record if it is still the stored
// version and keeps it for retention.
func (s *OTPStore) MarkVerified(ctx context.Context, record *OTPRecord, retention time.Duration) error {
	_, err := markVerifiedLua.Run(ctx, s.redis,
		[]string{s.key(record.Email), s.indexKey()},
		string(record.raw),
		retention.Milliseconds(),
		record.Email,
	).Result()
	if err != nil {
		return mapOTPScriptError(err)
	}
	record.Verified = true
	return nil
}

// RecordMismatch counts one failed guess. Once attempts reach maxAttempts the
// record is deleted and ErrOTPAttemptsExceeded is returned.
func (s *OTPStore) RecordMismatch(ctx context.Context, record *OTPRecord, maxAttempts int) error {
	attempts, err := recordMismatchLua.Run(ctx, s.redis,
		[]string{s.key(record.Email), s.indexKey()},
		string(record.raw),
		maxAttempts,
		record.Email,
	).Int()
	if err != nil {
		return mapOTPScriptError(err)
	}
	record.Attempts = uint16(attempts)
	return nil
}

// DeleteIfUnchanged removes record unless it was superseded after being read.
func (s *OTPStore) DeleteIfUnchanged(ctx context.Context, record *OTPRecord) (bool, error) {
	n, err := deleteIfUnchangedLua.Run(ctx, s.redis,
		[]string{s.key(record.Email), s.indexKey()},
		string(record.raw),
		record.Email,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return n == 1, nil
}

// Delete removes any record for email unconditionally.
func (s *OTPStore) Delete(ctx context.Context, email string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(email))
		pipe.ZRem(ctx, s.indexKey(), email)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// SweepExpired deletes every unverified record whose expiry is before now
// and returns how many were removed. Verified records are left alone.
func (s *OTPStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for batch := 0; batch < otpSweepMaxBatches; batch++ {
		res, err := sweepOTPLua.Run(ctx, s.redis,
			[]string{s.indexKey()},
			now.UnixMilli(),
			otpSweepBatch,
			s.recordPrefix(),
		).Int64Slice()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
		if len(res) != 2 {
			return total, fmt.Errorf("%w: unexpected lua result", ErrOTPRedisUnavailable)
		}

		total += int(res[0])
		if res[1] < otpSweepBatch {
			return total, nil
		}
	}
	return total, nil
}

// Ping reports the round-trip time to Redis.
func (s *OTPStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func mapOTPScriptError(err error) error {
	switch err.Error() {
	case "not_found":
		return ErrOTPNotFound
	case "superseded":
		return ErrOTPSuperseded
	case "attempts_exceeded":
		return ErrOTPAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	if record.Verified {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	if len(record.CodeHash) == 0 || len(record.CodeHash) > 65535 {
		return nil, errors.New("otp record code hash has invalid length")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.CodeHash))); err != nil {
		return nil, err
	}
	buf.WriteString(record.CodeHash)

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	verified, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{Verified: verified != 0}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}

	var expiresAtMs int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAtMs); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.UnixMilli(expiresAtMs)

	var hashLen uint16
	if err := binary.Read(reader, binary.BigEndian, &hashLen); err != nil {
		return nil, err
	}
	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return nil, err
	}
	record.CodeHash = string(hash)

	return record, nil
}
