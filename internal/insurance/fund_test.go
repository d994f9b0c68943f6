package insurance

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-amm/sentinel/internal/ledger"
)

var (
	pool     = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	lp       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	victim   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	evidence = common.HexToHash("0x01")
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testFund(t *testing.T) (*Fund, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.Mint(lp, d(1_000_000)))
	f := NewFund(Params{MinInsurableLoss: d(1000), MaxCompensationPct: 50}, l)
	return f, l
}

func TestFund_Deposit(t *testing.T) {
	f, l := testFund(t)

	total, err := f.Deposit(lp, pool, d(5000))
	require.NoError(t, err)
	assert.True(t, total.Equal(d(5000)))
	assert.True(t, f.Balance(pool).Equal(d(5000)))
	assert.True(t, l.Balance(Account).Equal(d(5000)))

	total, err = f.Deposit(lp, pool, d(2500))
	require.NoError(t, err)
	assert.True(t, total.Equal(d(7500)))
}

func TestFund_DepositRejectsZero(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Deposit(lp, pool, decimal.Zero)
	assert.ErrorIs(t, err, ErrZeroDeposit)
	_, err = f.Deposit(lp, pool, d(-1))
	assert.ErrorIs(t, err, ErrZeroDeposit)
}

func TestFund_DepositInsufficientFunds(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Deposit(victim, pool, d(100)) // victim has no balance
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, f.Balance(pool).IsZero())
}

func TestFund_ClaimCap(t *testing.T) {
	f, l := testFund(t)
	_, err := f.Deposit(lp, pool, d(10000))
	require.NoError(t, err)

	// 50% of 8000 = 4000, below the fund balance.
	res, err := f.Claim(victim, pool, d(8000), evidence)
	require.NoError(t, err)
	assert.True(t, res.Compensation.Equal(d(4000)))
	assert.True(t, res.FundRemains.Equal(d(6000)))
	assert.True(t, l.Balance(victim).Equal(d(4000)))
	assert.True(t, f.ClaimedTotal(pool, victim).Equal(d(4000)))

	// 50% of 100000 = 50000, capped at the remaining 6000.
	res, err = f.Claim(victim, pool, d(100000), evidence)
	require.NoError(t, err)
	assert.True(t, res.Compensation.Equal(d(6000)))
	assert.True(t, res.FundRemains.IsZero())
	assert.True(t, f.ClaimedTotal(pool, victim).Equal(d(10000)))
}

func TestFund_ClaimBelowMinimumFails(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Deposit(lp, pool, d(10000))
	require.NoError(t, err)

	_, err = f.Claim(victim, pool, d(999), evidence)
	assert.ErrorIs(t, err, ErrLossBelowMinimum)
}

func TestFund_ClaimEmptyFundFails(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Claim(victim, pool, d(5000), evidence)
	assert.ErrorIs(t, err, ErrFundEmpty)
}

func TestFund_ClaimZeroEvidenceFails(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Deposit(lp, pool, d(10000))
	require.NoError(t, err)

	_, err = f.Claim(victim, pool, d(5000), common.Hash{})
	assert.ErrorIs(t, err, ErrEvidenceEmpty)
}

func TestFund_ClaimCompensationFloors(t *testing.T) {
	f, _ := testFund(t)
	_, err := f.Deposit(lp, pool, d(10000))
	require.NoError(t, err)

	// 50% of 1001 = 500.5, floored to 500.
	res, err := f.Claim(victim, pool, d(1001), evidence)
	require.NoError(t, err)
	assert.True(t, res.Compensation.Equal(d(500)), "got %s", res.Compensation)
}

func TestFund_CreditProceeds(t *testing.T) {
	f, _ := testFund(t)
	total := f.CreditProceeds(pool, d(777))
	assert.True(t, total.Equal(d(777)))
	assert.True(t, f.Balance(pool).Equal(d(777)))
}

func TestFund_EmergencyWithdraw(t *testing.T) {
	f, l := testFund(t)
	_, err := f.Deposit(lp, pool, d(10000))
	require.NoError(t, err)

	owner := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	paid, err := f.EmergencyWithdraw(pool, owner, d(50000)) // capped
	require.NoError(t, err)
	assert.True(t, paid.Equal(d(10000)))
	assert.True(t, f.Balance(pool).IsZero())
	assert.True(t, l.Balance(owner).Equal(d(10000)))

	_, err = f.EmergencyWithdraw(pool, owner, d(1))
	assert.ErrorIs(t, err, ErrFundEmpty)
}

func TestFund_PoolsAreSegregated(t *testing.T) {
	f, _ := testFund(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000bbb")

	_, err := f.Deposit(lp, pool, d(5000))
	require.NoError(t, err)

	_, err = f.Claim(victim, other, d(5000), evidence)
	assert.ErrorIs(t, err, ErrFundEmpty, "other pool's fund is empty")
	assert.True(t, f.Balance(pool).Equal(d(5000)))
}
