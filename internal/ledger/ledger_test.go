package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func TestLedger_MintAndTransfer(t *testing.T) {
	l := New()

	require.NoError(t, l.Mint(alice, decimal.NewFromInt(1000)))
	assert.True(t, l.Balance(alice).Equal(decimal.NewFromInt(1000)))

	require.NoError(t, l.Transfer(alice, bob, decimal.NewFromInt(400)))
	assert.True(t, l.Balance(alice).Equal(decimal.NewFromInt(600)))
	assert.True(t, l.Balance(bob).Equal(decimal.NewFromInt(400)))
}

func TestLedger_InsufficientFunds(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(alice, decimal.NewFromInt(100)))

	err := l.Transfer(alice, bob, decimal.NewFromInt(101))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Both sides untouched on failure.
	assert.True(t, l.Balance(alice).Equal(decimal.NewFromInt(100)))
	assert.True(t, l.Balance(bob).IsZero())
}

func TestLedger_ZeroTransferIsNoop(t *testing.T) {
	l := New()
	require.NoError(t, l.Transfer(alice, bob, decimal.Zero))
	assert.True(t, l.Balance(bob).IsZero())
}

func TestLedger_NegativeAmountsRejected(t *testing.T) {
	l := New()
	require.Error(t, l.Mint(alice, decimal.NewFromInt(-1)))
	require.Error(t, l.Mint(alice, decimal.Zero))
	require.Error(t, l.Transfer(alice, bob, decimal.NewFromInt(-5)))
}

func TestLedger_SupplyConservation(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(alice, decimal.NewFromInt(700)))
	require.NoError(t, l.Mint(bob, decimal.NewFromInt(300)))

	require.NoError(t, l.Transfer(alice, bob, decimal.NewFromInt(123)))
	require.NoError(t, l.Transfer(bob, alice, decimal.NewFromInt(17)))

	assert.True(t, l.Sum().Equal(l.TotalMinted()),
		"sum=%s minted=%s", l.Sum().String(), l.TotalMinted().String())
}
