// Package auth verifies the operator password against an Argon2id PHC hash.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// phc holds the decoded fields of an Argon2id PHC-format hash string, e.g.
// "$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>".
type phc struct {
	memory, time uint32
	threads      uint8
	salt, hash   []byte
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return phc{}, fmt.Errorf("auth: not an argon2id PHC string")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return phc{}, fmt.Errorf("auth: parsing version: %w", err)
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("auth: unsupported argon2 version %d", version)
	}

	var p phc
	for _, field := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return phc{}, fmt.Errorf("auth: malformed parameter %q", field)
		}
		n, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return phc{}, fmt.Errorf("auth: parsing parameter %q: %w", field, err)
		}
		switch kv[0] {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			p.threads = uint8(n)
		default:
			return phc{}, fmt.Errorf("auth: unknown parameter %q", kv[0])
		}
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phc{}, fmt.Errorf("auth: decoding salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phc{}, fmt.Errorf("auth: decoding hash: %w", err)
	}
	return p, nil
}

// Verify reports whether password matches the given Argon2id PHC hash
// string. A malformed hash is treated as a verification failure, not an
// error, so callers can always collapse this to a boolean auth decision.
func Verify(encoded, password string) bool {
	p, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1
}
