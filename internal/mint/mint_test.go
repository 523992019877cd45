package mint

import (
	"reflect"
	"testing"

	"github.com/mr-tron/base58"
)

const (
	wsol     = "So11111111111111111111111111111111111111112"
	usdcEVM  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	tokenPgm = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		addr string
		want Kind
	}{
		{wsol, KindSolana},
		{"  " + wsol + "\n", KindSolana},
		{usdcEVM, KindEVM},
		{"0xZZb86991c6218b36c1d19D4a2e9Eb0cE3606eB48", KindUnknown},
		{"0xA0b8", KindUnknown},
		{"not-an-address", KindUnknown},
		{"", KindUnknown},
		{"0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", KindUnknown}, // characters outside the base58 alphabet
	}
	for _, tt := range tests {
		if got := Classify(tt.addr); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.addr, got, tt.want)
		}
	}
}

func TestOnCurve(t *testing.T) {
	// The edwards25519 base point encoding is a valid point.
	base := make([]byte, 32)
	base[0] = 0x58
	for i := 1; i < 32; i++ {
		base[i] = 0x66
	}
	if !OnCurve(base58.Encode(base)) {
		t.Error("expected base point to be on the curve")
	}

	if OnCurve(usdcEVM) {
		t.Error("EVM address cannot be on the ed25519 curve")
	}
	if OnCurve("garbage") {
		t.Error("garbage cannot be on the curve")
	}
}

func TestCanonical(t *testing.T) {
	if got := Canonical(" " + usdcEVM + " "); got != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Errorf("unexpected canonical EVM address %q", got)
	}
	if got := Canonical(wsol); got != wsol {
		t.Errorf("Solana addresses are case-sensitive, got %q", got)
	}
}

func TestNetworkOrder(t *testing.T) {
	configured := []string{"bsc", "solana", "eth", "base"}

	tests := []struct {
		name string
		addr string
		want []string
	}{
		{"solana first", tokenPgm, []string{"solana", "bsc", "eth", "base"}},
		{"evm skips solana", usdcEVM, []string{"bsc", "eth", "base"}},
		{"unknown keeps order", "xyz", configured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NetworkOrder(tt.addr, configured); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NetworkOrder = %v, want %v", got, tt.want)
			}
		})
	}
}
