// Package password 提供基于 Argon2id 的口令哈希与校验，用于用户密码与分享链接密码.
//
// 编码格式: argon2id$<time>$<memory>$<threads>$<salt>$<hash>，salt 与 hash 为无填充 base64.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

// ErrInvalidHash 哈希串格式不合法.
var ErrInvalidHash = errors.New("password: invalid hash format")

// Params Argon2id 参数.
type Params struct {
	Time       uint32
	Memory     uint32 // KiB
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// DefaultParams 默认参数.
var DefaultParams = Params{
	Time:       1,
	Memory:     64 * 1024,
	Threads:    4,
	KeyLength:  32,
	SaltLength: 16,
}

func (p Params) withDefaults() Params {
	if p.Time == 0 {
		p.Time = DefaultParams.Time
	}

	if p.Memory == 0 {
		p.Memory = DefaultParams.Memory
	}

	if p.Threads == 0 {
		p.Threads = DefaultParams.Threads
	}

	if p.KeyLength == 0 {
		p.KeyLength = DefaultParams.KeyLength
	}

	if p.SaltLength == 0 {
		p.SaltLength = DefaultParams.SaltLength
	}

	return p
}

// Hash 使用默认参数哈希明文.
func Hash(plain string) (string, error) {
	return HashWithParams(plain, DefaultParams)
}

// HashWithParams 使用指定参数哈希明文，每次生成新的随机盐.
func HashWithParams(plain string, p Params) (string, error) {
	p = p.withDefaults()

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, p.KeyLength)

	return fmt.Sprintf("%s$%d$%d$%d$%s$%s", algorithm, p.Time, p.Memory, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify 校验明文与哈希是否匹配，比较耗时与匹配位置无关.
func Verify(plain, encoded string) (bool, error) {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != algorithm {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var nums [3]uint64

	for i := range nums {
		n, err := strconv.ParseUint(parts[i+1], 10, 32)
		if err != nil {
			return Params{}, nil, nil, fmt.Errorf("%w: %w", ErrInvalidHash, err)
		}

		nums[i] = n
	}

	if nums[0] == 0 || nums[2] == 0 || nums[2] > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		Time:       uint32(nums[0]),
		Memory:     uint32(nums[1]),
		Threads:    uint8(nums[2]),
		KeyLength:  uint32(len(key)),
		SaltLength: uint32(len(salt)),
	}, salt, key, nil
}
