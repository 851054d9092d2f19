package staticcache

import (
	"io"
	"math/big"
	"testing"

	"github.com/fd1az/market-data-engine/internal/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func TestKeyShape(t *testing.T) {
	key := Key("0xABCDEF0123456789abcdef0123456789ABCDEF01", "getPool",
		"0x1", "0x2", big.NewInt(3000))

	want := `contract:0xabcdef0123456789abcdef0123456789abcdef01:getPool:["0x1","0x2",{"__type__":"bigint","value":"3000"}]`
	if key != want {
		t.Errorf("Key = %s, want %s", key, want)
	}
}

func TestCacheable(t *testing.T) {
	for _, m := range []string{"name", "symbol", "decimals", "token0", "token1",
		"fee", "tickSpacing", "getPair", "getPool", "factory", "router"} {
		if !Cacheable(m) {
			t.Errorf("%s should be cacheable", m)
		}
	}
	for _, m := range []string{"getReserves", "slot0", "liquidity", "balanceOf"} {
		if Cacheable(m) {
			t.Errorf("%s must not be cacheable", m)
		}
	}
}

func TestRoundTripWithBigInts(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 1, newTestLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	big1, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	value := map[string]any{
		"fee":    float64(3000),
		"sqrtP":  big1,
		"tokens": []any{"0xaa", "0xbb"},
	}

	key := Key("0xpool", "fee")
	c.Put(key, value)

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Reopen and verify nested big integers survive.
	c2, err := Open(dir, 1, newTestLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, ok := c2.Get(key)
	if !ok {
		t.Fatal("entry lost after reopen")
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	sqrtP, ok := m["sqrtP"].(*big.Int)
	if !ok {
		t.Fatalf("sqrtP decoded as %T, want *big.Int", m["sqrtP"])
	}
	if sqrtP.Cmp(big1) != 0 {
		t.Errorf("sqrtP = %s, want %s", sqrtP, big1)
	}
	tokens, ok := m["tokens"].([]any)
	if !ok || len(tokens) != 2 || tokens[0] != "0xaa" {
		t.Errorf("tokens = %#v, want [0xaa 0xbb]", m["tokens"])
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 56, newTestLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	c.Put(Key("0xpool", "token0"), "0xtoken")
	if err := c.Flush(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	// Second flush with no writes must be a no-op and succeed.
	if err := c.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
