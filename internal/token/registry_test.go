package token

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func newRegistry() *Registry {
	return NewRegistry(logger.New(io.Discard, logger.LevelDebug, "test", nil))
}

type fakeIntrospector struct {
	calls int
	meta  Metadata
	err   error
}

func (f *fakeIntrospector) TokenMetadata(_ context.Context, _ uint64, _ common.Address) (Metadata, error) {
	f.calls++
	if f.err != nil {
		return Metadata{}, f.err
	}
	return f.meta, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := newRegistry()
	weth := New(1, wethAddr, "WETH", "Wrapped Ether", 18, true)
	r.Register(weth)

	got, ok := r.GetByAddress(1, wethAddr)
	if !ok || !got.Equals(weth) {
		t.Fatalf("GetByAddress failed: %v %v", got, ok)
	}

	// Address lookup is case-insensitive; stored address is lowercase.
	if got.Address() != "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" {
		t.Errorf("address not normalised: %s", got.Address())
	}

	bySym, ok := r.GetBySymbol(1, "weth")
	if !ok || !bySym.Equals(weth) {
		t.Errorf("GetBySymbol failed: %v %v", bySym, ok)
	}

	if _, ok := r.GetByAddress(56, wethAddr); ok {
		t.Error("token must not leak across chains")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := newRegistry()
	r.Register(New(1, usdcAddr, "USDC", "USD Coin", 6, true))
	r.Register(New(1, usdcAddr, "USDC2", "Impostor", 18, false))

	got, _ := r.GetByAddress(1, usdcAddr)
	if got.Symbol() != "USDC" || got.Decimals() != 6 {
		t.Errorf("second registration must not mutate: %s/%d", got.Symbol(), got.Decimals())
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestEnsureRegisteredIntrospectsOnce(t *testing.T) {
	r := newRegistry()
	intro := &fakeIntrospector{meta: Metadata{Name: "Dai Stablecoin", Symbol: "DAI", Decimals: 18}}
	addr := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	got, err := r.EnsureRegistered(context.Background(), 1, addr, intro)
	if err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}
	if got.Symbol() != "DAI" || got.Trusted() {
		t.Errorf("introspected token wrong: %s trusted=%v", got.Symbol(), got.Trusted())
	}

	// Second call must hit the registry, not the chain.
	if _, err := r.EnsureRegistered(context.Background(), 1, addr, intro); err != nil {
		t.Fatalf("second EnsureRegistered: %v", err)
	}
	if intro.calls != 1 {
		t.Errorf("introspector called %d times, want 1", intro.calls)
	}
}

func TestEnsureRegisteredMemoisesFailure(t *testing.T) {
	r := newRegistry()
	intro := &fakeIntrospector{err: errors.New("execution reverted")}
	addr := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	_, err := r.EnsureRegistered(context.Background(), 1, addr, intro)
	if apperror.GetCode(err) != apperror.CodeIntrospectionFailed {
		t.Fatalf("code = %s, want %s", apperror.GetCode(err), apperror.CodeIntrospectionFailed)
	}

	_, err2 := r.EnsureRegistered(context.Background(), 1, addr, intro)
	if err2 == nil {
		t.Fatal("second call must also fail")
	}
	if intro.calls != 1 {
		t.Errorf("introspector called %d times, want 1 (failure memoised)", intro.calls)
	}
}

func TestTrustedSeed(t *testing.T) {
	r := newRegistry()
	r.Seed([]*Token{
		New(1, wethAddr, "WETH", "Wrapped Ether", 18, true),
		New(1, usdcAddr, "USDC", "USD Coin", 6, true),
	})

	intro := &fakeIntrospector{}
	got, err := r.EnsureRegistered(context.Background(), 1, wethAddr, intro)
	if err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}
	if !got.Trusted() {
		t.Error("seeded token must stay trusted")
	}
	if intro.calls != 0 {
		t.Errorf("seeded token must not be introspected, got %d calls", intro.calls)
	}
}
