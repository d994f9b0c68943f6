package guard

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-amm/sentinel/internal/auction"
	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/insurance"
	"github.com/sentinel-amm/sentinel/internal/oracle"
	"github.com/sentinel-amm/sentinel/internal/scoring"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000000002")
	protocol = common.HexToAddress("0x0000000000000000000000000000000000000003")
	pool     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestGuard(t *testing.T) (*Guard, *bus.StubProducer) {
	t.Helper()

	stub := bus.NewStubProducer()
	g := New(Config{
		Owner:           owner,
		Treasury:        treasury,
		Protocol:        protocol,
		Producer:        stub,
		ScoringParams:   scoring.DefaultParams(),
		AuctionPolicy:   auction.DefaultPolicy(),
		InsuranceParams: insurance.DefaultParams(),
		AuditCapacity:   256,
	})

	require.NoError(t, g.Ledger().Mint(alice, dec(100_000_000)))
	require.NoError(t, g.Ledger().Mint(bob, dec(100_000_000)))
	require.NoError(t, g.RegisterPool(owner, pool, dec(5_000_000)))
	return g, stub
}

func TestOwnerGateOnAdminSurface(t *testing.T) {
	g, _ := newTestGuard(t)

	require.ErrorIs(t, g.RegisterPool(alice, pool, dec(1)), ErrNotOwner)
	require.ErrorIs(t, g.DisallowPool(alice, pool), ErrNotOwner)
	require.ErrorIs(t, g.SetScoringParams(alice, scoring.DefaultParams()), ErrNotOwner)
	require.ErrorIs(t, g.SetAuctionPolicy(alice, auction.DefaultPolicy()), ErrNotOwner)
	require.ErrorIs(t, g.SetInsuranceParams(alice, insurance.DefaultParams()), ErrNotOwner)
	require.ErrorIs(t, g.Pause(alice, "x"), ErrNotOwner)
	require.ErrorIs(t, g.TransferOwnership(alice, alice), ErrNotOwner)

	require.NoError(t, g.TransferOwnership(owner, alice))
	require.NoError(t, g.Pause(alice, "handover check"))
	require.NoError(t, g.Unpause(alice))
}

func TestPauseBlocksMutatorsButNotOwner(t *testing.T) {
	g, stub := newTestGuard(t)

	_, err := g.StartAuction(owner, pool, dec(1000), time.Minute)
	require.NoError(t, err)

	require.NoError(t, g.Pause(owner, "anomaly"))
	require.True(t, g.Paused())

	_, err = g.AfterSwap(alice, pool, dec(2_000_000), dec(-1_900_000))
	require.ErrorIs(t, err, ErrPaused)
	_, err = g.PlaceBid(alice, pool, 0, dec(5000))
	require.ErrorIs(t, err, ErrPaused)
	_, err = g.StartAuction(alice, pool, dec(1000), time.Minute)
	require.ErrorIs(t, err, ErrPaused)
	_, err = g.Deposit(alice, pool, dec(1000))
	require.ErrorIs(t, err, ErrPaused)
	_, err = g.Claim(alice, pool, dec(500_000), common.HexToHash("0x01"))
	require.ErrorIs(t, err, ErrPaused)

	// The owner keeps full access while paused.
	_, err = g.PlaceBid(owner, pool, 0, dec(5000))
	require.Error(t, err) // owner has no minted funds, but passes the gate
	require.NotErrorIs(t, err, ErrPaused)
	require.NoError(t, g.SetAlertThreshold(owner, pool, dec(1)))

	require.NoError(t, g.Unpause(owner))
	_, err = g.Deposit(alice, pool, dec(1000))
	require.NoError(t, err)

	paused := stub.ByTopic(bus.TopicEmergency)
	require.Len(t, paused, 2)
}

func TestDoublePauseAndUnpauseWhenRunning(t *testing.T) {
	g, _ := newTestGuard(t)

	require.ErrorIs(t, g.Unpause(owner), ErrNotPaused)
	require.NoError(t, g.Pause(owner, "first"))
	require.Error(t, g.Pause(owner, "second"))
}

func TestAuctionFlowEndToEnd(t *testing.T) {
	g, stub := newTestGuard(t)

	a, err := g.StartAuction(alice, pool, dec(1000), 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint64(0), a.ID)

	_, err = g.PlaceBid(alice, pool, 0, dec(100_000))
	require.NoError(t, err)
	_, err = g.PlaceBid(bob, pool, 0, dec(100_000))
	require.ErrorIs(t, err, ErrBidNotLeading)

	_, err = g.FinalizeAuction(alice, pool, 0)
	require.ErrorIs(t, err, ErrAuctionNotEnded)

	time.Sleep(60 * time.Millisecond)
	s, err := g.FinalizeAuction(alice, pool, 0)
	require.NoError(t, err)
	require.True(t, s.HadWinner)
	require.True(t, dec(45_000).Equal(s.WinnerShare))
	require.True(t, dec(10_000).Equal(s.InsuranceCut))

	// The remainder lands in the pool's insurance fund.
	require.True(t, dec(10_000).Equal(g.FundBalance(pool)))

	// The override is live at the auction's captured fee.
	fee, ok := g.BeforeSwap(pool)
	require.True(t, ok)
	require.Equal(t, a.FeeBps, fee)

	_, err = g.FinalizeAuction(alice, pool, 0)
	require.ErrorIs(t, err, ErrAlreadySettled)

	topics := map[string]bool{}
	for _, m := range stub.ByTopic(bus.TopicAuctions) {
		topics[m.Key] = true
	}
	require.True(t, topics[pool.Hex()])
	// started + bid + time-weighted + settled + override installed
	require.Len(t, stub.ByTopic(bus.TopicAuctions), 5)
}

func TestStartAuctionRequiresRegisteredPool(t *testing.T) {
	g, _ := newTestGuard(t)
	unknown := common.HexToAddress("0xdead")

	_, err := g.StartAuction(alice, unknown, dec(1000), time.Minute)
	require.ErrorIs(t, err, ErrPoolNotRegistered)
	_, err = g.PlaceBid(alice, unknown, 0, dec(1000))
	require.ErrorIs(t, err, ErrPoolNotRegistered)
	_, err = g.AfterSwap(alice, unknown, dec(1), dec(-1))
	require.ErrorIs(t, err, ErrPoolNotRegistered)
}

func TestOwnerOnlyStartPolicy(t *testing.T) {
	g, _ := newTestGuard(t)

	p := auction.DefaultPolicy()
	p.OwnerOnlyStart = true
	p.Treasury = treasury
	p.Protocol = protocol
	require.NoError(t, g.SetAuctionPolicy(owner, p))

	_, err := g.StartAuction(alice, pool, dec(1000), time.Minute)
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = g.StartAuction(owner, pool, dec(1000), time.Minute)
	require.NoError(t, err)
}

func TestAfterSwapPublishesObservation(t *testing.T) {
	g, stub := newTestGuard(t)

	report, err := g.AfterSwap(alice, pool, dec(500_000), dec(-480_000))
	require.NoError(t, err)
	require.True(t, dec(500_000).Equal(report.AmountIn))
	require.False(t, report.Alerted)

	msgs := stub.ByTopic(bus.TopicSwaps)
	require.Len(t, msgs, 1)
	require.Empty(t, stub.ByTopic(bus.TopicAlerts))
}

func TestAfterSwapRaisesAlertAboveThreshold(t *testing.T) {
	g, stub := newTestGuard(t)

	// 6_000_000 >= floor, base score 6_000_000 >= threshold 5_000_000.
	report, err := g.AfterSwap(alice, pool, dec(6_000_000), dec(-5_900_000))
	require.NoError(t, err)
	require.True(t, report.Alerted)
	require.NotEqual(t, common.Hash{}, report.Evidence)
	require.True(t, report.Score.GreaterThanOrEqual(dec(5_000_000)))

	require.Len(t, stub.ByTopic(bus.TopicAlerts), 1)
}

func TestAfterSwapScoresAgainstPriorLargeSwap(t *testing.T) {
	g, _ := newTestGuard(t)

	// First large swap establishes the stamp.
	first, err := g.AfterSwap(alice, pool, dec(2_000_000), dec(-1_900_000))
	require.NoError(t, err)
	require.NotContains(t, first.Reasons, "RAPID_SWAP")

	// Second large swap moments later is scored against the first one:
	// rapid-swap and sandwich both apply.
	second, err := g.AfterSwap(bob, pool, dec(2_000_000), dec(-1_900_000))
	require.NoError(t, err)
	assert.Contains(t, second.Reasons, "RAPID_SWAP")
	assert.Contains(t, second.Reasons, "SANDWICH_PATTERN")
}

func TestBeforeSwapWithoutOverride(t *testing.T) {
	g, _ := newTestGuard(t)
	fee, ok := g.BeforeSwap(pool)
	require.False(t, ok)
	require.Zero(t, fee)
}

func TestInsuranceFlowThroughGuard(t *testing.T) {
	g, stub := newTestGuard(t)

	newTotal, err := g.Deposit(alice, pool, dec(1_000_000))
	require.NoError(t, err)
	require.True(t, dec(1_000_000).Equal(newTotal))

	res, err := g.Claim(bob, pool, dec(400_000), common.HexToHash("0xbeef"))
	require.NoError(t, err)
	require.True(t, dec(200_000).Equal(res.Compensation))

	_, err = g.Claim(bob, pool, dec(50_000), common.HexToHash("0xbeef"))
	require.ErrorIs(t, err, ErrLossBelowMinimum)

	require.Len(t, stub.ByTopic(bus.TopicInsurance), 2)
}

func TestEmergencyWithdrawRequiresPause(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Deposit(alice, pool, dec(1_000_000))
	require.NoError(t, err)

	_, err = g.EmergencyWithdraw(owner, pool, treasury, dec(500_000))
	require.ErrorIs(t, err, ErrNotPaused)
	_, err = g.EmergencyWithdraw(alice, pool, treasury, dec(500_000))
	require.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, g.Pause(owner, "drain"))
	withdrawn, err := g.EmergencyWithdraw(owner, pool, treasury, dec(2_000_000))
	require.NoError(t, err)
	require.True(t, dec(1_000_000).Equal(withdrawn)) // capped at balance
}

func TestOracleRecommendationInstallsOverride(t *testing.T) {
	g, stub := newTestGuard(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, g.AllowOracleSigner(owner, signer))

	rec := oracle.Recommendation{
		Pool:     pool,
		FeeBps:   300,
		Nonce:    1,
		Deadline: time.Now().Add(time.Minute),
	}
	sig, err := crypto.Sign(rec.Digest().Bytes(), key)
	require.NoError(t, err)
	rec.Sig = sig

	got, err := g.ApplyRecommendation(alice, rec)
	require.NoError(t, err)
	require.Equal(t, signer, got)

	fee, ok := g.BeforeSwap(pool)
	require.True(t, ok)
	require.Equal(t, uint32(300), fee)

	// Replay is rejected.
	_, err = g.ApplyRecommendation(alice, rec)
	require.Error(t, err)

	require.NotEmpty(t, stub.ByTopic(bus.TopicAuctions))
}

func TestWithdrawFeesMovesTreasuryBalance(t *testing.T) {
	g, _ := newTestGuard(t)

	a, err := g.StartAuction(alice, pool, dec(1000), 30*time.Millisecond)
	require.NoError(t, err)
	_, err = g.PlaceBid(alice, pool, a.ID, dec(100_000))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = g.FinalizeAuction(alice, pool, a.ID)
	require.NoError(t, err)

	sink := common.HexToAddress("0xfee")
	require.ErrorIs(t, g.WithdrawFees(alice, sink, dec(1)), ErrNotOwner)
	require.NoError(t, g.WithdrawFees(owner, sink, dec(35_000)))
	require.True(t, dec(35_000).Equal(g.Ledger().Balance(sink)))
}

func TestAuditTrailRecordsDecisions(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.StartAuction(alice, pool, dec(1000), time.Minute)
	require.NoError(t, err)
	_, err = g.AfterSwap(alice, common.HexToAddress("0xdead"), dec(1), dec(-1))
	require.Error(t, err)

	entries := g.Trail().ByPool(pool, 10)
	require.NotEmpty(t, entries)

	denied := g.Trail().ByPool(common.HexToAddress("0xdead"), 10)
	require.Len(t, denied, 1)
	require.Equal(t, "after_swap", denied[0].Action)
}
