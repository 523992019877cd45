// Package mint classifies token addresses by the chain family they belong to.
package mint

import (
	"encoding/hex"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Kind is the address family of a token.
type Kind int

const (
	KindUnknown Kind = iota
	KindSolana       // base58, 32 bytes
	KindEVM          // 0x + 40 hex digits
)

func (k Kind) String() string {
	switch k {
	case KindSolana:
		return "solana"
	case KindEVM:
		return "evm"
	default:
		return "unknown"
	}
}

// SolanaNetwork is the provider network id for Solana.
const SolanaNetwork = "solana"

// Classify returns the address family of addr.
func Classify(addr string) Kind {
	addr = strings.TrimSpace(addr)
	if isEVM(addr) {
		return KindEVM
	}
	if _, ok := decodeSolana(addr); ok {
		return KindSolana
	}
	return KindUnknown
}

// OnCurve reports whether addr is a Solana address that decodes to a valid
// edwards25519 point. Program-derived addresses are off the curve.
func OnCurve(addr string) bool {
	raw, ok := decodeSolana(strings.TrimSpace(addr))
	if !ok {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// Canonical returns addr trimmed, with EVM hex lowercased.
func Canonical(addr string) string {
	addr = strings.TrimSpace(addr)
	if isEVM(addr) {
		return strings.ToLower(addr)
	}
	return addr
}

// NetworkOrder returns the networks to try for addr, keeping the configured
// order. Solana addresses move solana to the front; EVM addresses drop it.
func NetworkOrder(addr string, configured []string) []string {
	order := make([]string, 0, len(configured))

	switch Classify(addr) {
	case KindSolana:
		for _, n := range configured {
			if n == SolanaNetwork {
				order = append(order, n)
			}
		}
		for _, n := range configured {
			if n != SolanaNetwork {
				order = append(order, n)
			}
		}
	case KindEVM:
		for _, n := range configured {
			if n != SolanaNetwork {
				order = append(order, n)
			}
		}
	default:
		order = append(order, configured...)
	}

	return order
}

func isEVM(addr string) bool {
	if len(addr) != 42 || !(strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")) {
		return false
	}
	_, err := hex.DecodeString(addr[2:])
	return err == nil
}

func decodeSolana(addr string) ([]byte, bool) {
	if len(addr) < 32 || len(addr) > 44 {
		return nil, false
	}
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return nil, false
	}
	return raw, true
}
