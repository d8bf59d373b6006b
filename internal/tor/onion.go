package tor

import (
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"

	// onionV3Version is the version byte embedded in v3 addresses.
	onionV3Version = 0x03
)

// Onion address validation errors.
var (
	// ErrInvalidOnionAddress is returned when a configured backend host
	// is not a valid v3 onion address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2OnionAddress is returned for v2-format addresses, which were
	// retired from the Tor network in 2021 and can never connect.
	ErrV2OnionAddress = errors.New("v2 onion addresses are no longer supported by the Tor network")
)

// onionV3Pattern matches v3 onion addresses: 56 base32 characters
// (lowercase a-z and digits 2-7) plus the suffix.
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// onionV2Pattern matches the retired 16-character v2 format, detected
// only to produce a clearer error than "invalid address".
var onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

// checksumPrefix is the domain separator from the Tor rendezvous spec
// used in the v3 address checksum.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether the host (optionally with port) names an
// onion address. It does not validate the address; use ValidateOnionHost
// for that.
func IsOnionHost(host string) bool {
	h, _ := SplitHostPort(host, 0)
	return strings.HasSuffix(strings.ToLower(h), OnionSuffix)
}

// ValidateOnionHost checks that a backend host is a well-formed v3 onion
// address, including the embedded checksum. Full checksum validation
// catches typos in config files before a query ever burns a circuit on
// a hostname Tor can never resolve.
func ValidateOnionHost(host string) error {
	addr, _ := SplitHostPort(host, 0)
	addr = strings.ToLower(strings.TrimSpace(addr))

	if onionV2Pattern.MatchString(addr) {
		return ErrV2OnionAddress
	}
	if !onionV3Pattern.MatchString(addr) {
		return ErrInvalidOnionAddress
	}

	raw := strings.TrimSuffix(addr, OnionSuffix)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(raw))
	if err != nil {
		return ErrInvalidOnionAddress
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	if len(decoded) != 35 || decoded[34] != onionV3Version {
		return ErrInvalidOnionAddress
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]

	// checksum = SHA3-256(".onion checksum" || pubkey || version)[:2]
	data := make([]byte, 0, len(checksumPrefix)+33)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, onionV3Version)
	want := sha3.Sum256(data)

	if checksum[0] != want[0] || checksum[1] != want[1] {
		return ErrInvalidOnionAddress
	}
	return nil
}
