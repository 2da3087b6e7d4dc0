package core

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ganjes-dao/govcore/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerA = common.HexToAddress("0x073F5395476468e4Fc785301026607bc4eBab128")
	ownerB = common.HexToAddress("0xc55999C2D16dB17261c7140963118efaFb64F897")
	ownerC = common.HexToAddress("0x891fc568C192832D5Ce12C66e95bC47aF5aE8A8F")

	proposer = common.HexToAddress("0x1100000000000000000000000000000000000001")
	alice    = common.HexToAddress("0x1100000000000000000000000000000000000002")
	bob      = common.HexToAddress("0x1100000000000000000000000000000000000003")
	carol    = common.HexToAddress("0x1100000000000000000000000000000000000004")
)

// testClock drives deadlines without sleeping.
type testClock struct {
	now int64
}

func (c *testClock) time() time.Time {
	return time.Unix(c.now, 0)
}

func (c *testClock) advance(secs int64) {
	c.now += secs
}

func newTestDAO(t *testing.T, supply int64) (*DAO, *MemLedger, *testClock) {
	cfg := repo.DefaultConfig(t.TempDir())
	cfg.Governance.MinTokensForProposal = "100"
	cfg.Governance.MinVotingTokens = "10"
	cfg.Governance.MinQuorumPercent = 50
	cfg.Governance.ProposalFee = "10"
	cfg.Governance.VotingDuration = time.Hour
	cfg.Governance.FinalizeInterval = 0
	cfg.MultiSig.Owners = []string{ownerA.Hex(), ownerB.Hex(), ownerC.Hex()}
	cfg.MultiSig.RequiredApprovals = 2

	ledger := NewMemLedger(big.NewInt(supply))

	dao, err := NewDAO(context.Background(), cfg, ledger)
	require.Nil(t, err)

	clock := &testClock{now: 1_700_000_000}
	dao.nowFn = clock.time

	return dao, ledger, clock
}

// fund mints tokens for addr and approves DAO custody to pull them.
func fund(ledger *MemLedger, addr common.Address, amount int64) {
	ledger.Mint(addr, big.NewInt(amount))
	ledger.Approve(addr, ledger.Custody(), big.NewInt(amount))
}

func createTestProposal(t *testing.T, dao *DAO, ledger *MemLedger, goal int64) uint64 {
	fund(ledger, proposer, 200)
	id, err := dao.CreateProposal(proposer, "expand validator set", "Ganjes Validators", "https://ganjes.io/validators", big.NewInt(goal))
	require.Nil(t, err)
	return id
}

func TestCreateProposal(t *testing.T) {
	dao, ledger, _ := newTestDAO(t, 1000)
	fund(ledger, proposer, 200)

	id, err := dao.CreateProposal(proposer, "expand validator set", "Ganjes Validators", "https://ganjes.io/validators", big.NewInt(500))
	require.Nil(t, err)
	assert.Equal(t, uint64(1), id)

	details, err := dao.GetProposalBasicDetails(id)
	require.Nil(t, err)
	assert.Equal(t, proposer, details.Proposer)
	assert.Equal(t, "expand validator set", details.Description)
	assert.Equal(t, big.NewInt(500), details.FundingGoal)
	assert.False(t, details.Executed)
	assert.Equal(t, details.CreatedAt+3600, details.EndTime)

	// fee moved into custody
	balance, err := ledger.BalanceOf(context.Background(), proposer)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(190), balance)
	assert.Equal(t, big.NewInt(10), dao.GetDAOBalance())

	// ids keep increasing
	id2, err := dao.CreateProposal(proposer, "second", "Ganjes Node", "https://ganjes.io/node", big.NewInt(100))
	require.Nil(t, err)
	assert.Equal(t, uint64(2), id2)
}

func TestCreateProposalPreconditions(t *testing.T) {
	dao, ledger, _ := newTestDAO(t, 1000)

	// below the proposal threshold
	fund(ledger, alice, 50)
	_, err := dao.CreateProposal(alice, "desc", "name", "https://x.io", big.NewInt(100))
	assert.ErrorIs(t, err, ErrInsufficientTokens)

	fund(ledger, proposer, 200)

	_, err = dao.CreateProposal(proposer, "desc", "name", "https://x.io", big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidFundingGoal)

	_, err = dao.CreateProposal(proposer, "desc", "name", "https://x.io", nil)
	assert.ErrorIs(t, err, ErrInvalidFundingGoal)

	_, err = dao.CreateProposal(proposer, "", "name", "https://x.io", big.NewInt(100))
	assert.ErrorIs(t, err, ErrEmptyMetadata)

	// balance high enough but no allowance for the fee
	ledger.Mint(bob, big.NewInt(200))
	_, err = dao.CreateProposal(bob, "desc", "name", "https://x.io", big.NewInt(100))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	// nothing was created by any of the failed attempts
	assert.Empty(t, dao.GetAllProposalIDs())
	assert.Equal(t, big.NewInt(0), dao.GetDAOBalance())
}

func TestVoteTallies(t *testing.T) {
	dao, ledger, _ := newTestDAO(t, 1000)
	id := createTestProposal(t, dao, ledger, 1000)

	fund(ledger, alice, 100)
	fund(ledger, bob, 100)

	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(50)))
	require.Nil(t, dao.Vote(bob, id, true, big.NewInt(30)))

	voting, err := dao.GetProposalVotingDetails(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), voting.VotersFor)
	assert.Equal(t, uint64(0), voting.VotersAgainst)
	assert.Equal(t, big.NewInt(80), voting.TotalVotesFor)
	assert.Equal(t, big.NewInt(0), voting.TotalVotesAgainst)
	assert.Equal(t, big.NewInt(80), voting.TotalInvested)

	// weight conservation: tallies always equal the sum of investments
	sum := new(big.Int).Add(voting.TotalVotesFor, voting.TotalVotesAgainst)
	assert.Equal(t, voting.TotalInvested, sum)

	// fee + investments are in custody
	assert.Equal(t, big.NewInt(90), dao.GetDAOBalance())
}

func TestVotePreconditions(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 1000)
	id := createTestProposal(t, dao, ledger, 1000)

	fund(ledger, alice, 100)

	err := dao.Vote(alice, 99, true, big.NewInt(50))
	assert.ErrorIs(t, err, ErrProposalNotFound)

	err = dao.Vote(proposer, id, true, big.NewInt(50))
	assert.ErrorIs(t, err, ErrProposerCannotVote)

	err = dao.Vote(alice, id, true, big.NewInt(5))
	assert.ErrorIs(t, err, ErrInvestmentTooSmall)

	// balance and allowance shortfalls are distinct failures
	err = dao.Vote(alice, id, true, big.NewInt(500))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	ledger.Mint(carol, big.NewInt(100))
	err = dao.Vote(carol, id, true, big.NewInt(50))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	// one vote per address per proposal
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(50)))
	err = dao.Vote(alice, id, false, big.NewInt(20))
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	voting, err := dao.GetProposalVotingDetails(id)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(50), voting.TotalInvested)

	// deadline closes the window
	clock.advance(3601)
	fund(ledger, bob, 100)
	err = dao.Vote(bob, id, true, big.NewInt(50))
	assert.ErrorIs(t, err, ErrVotingClosed)
}

func TestExecuteProposalPasses(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 160)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	fund(ledger, bob, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(50)))
	require.Nil(t, dao.Vote(bob, id, true, big.NewInt(30)))

	// too early
	_, err := dao.ExecuteProposal(id)
	assert.ErrorIs(t, err, ErrVotingNotEnded)

	clock.advance(3601)

	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	assert.True(t, passed)

	details, err := dao.GetProposalBasicDetails(id)
	require.Nil(t, err)
	assert.True(t, details.Executed)
	assert.True(t, details.Passed)
	assert.False(t, details.Rejected)

	// proposer got the funding goal out of custody
	balance, err := ledger.BalanceOf(context.Background(), proposer)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(190+60), balance)
	// fee(10) + investments(80) - payout(60)
	assert.Equal(t, big.NewInt(30), dao.GetDAOBalance())

	rec, err := dao.GetFundingRecord(1)
	require.Nil(t, err)
	assert.Equal(t, id, rec.ProposalID)
	assert.Equal(t, proposer, rec.Recipient)
	assert.Equal(t, big.NewInt(60), rec.Amount)
	assert.Equal(t, big.NewInt(60), dao.GetTotalFundedAmount())
}

func TestExecuteProposalIsIdempotent(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 160)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(80)))

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	require.True(t, passed)

	balanceAfter := dao.GetDAOBalance()
	proposerAfter, err := ledger.BalanceOf(context.Background(), proposer)
	require.Nil(t, err)

	// the second call reports already-executed and moves nothing
	_, err = dao.ExecuteProposal(id)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)

	assert.Equal(t, balanceAfter, dao.GetDAOBalance())
	proposerAgain, err := ledger.BalanceOf(context.Background(), proposer)
	require.Nil(t, err)
	assert.Equal(t, proposerAfter, proposerAgain)
	assert.Equal(t, big.NewInt(60), dao.GetTotalFundedAmount())
}

func TestExecuteProposalQuorumFails(t *testing.T) {
	// supply 1000, quorum 50% -> 80 invested is far below 500
	dao, ledger, clock := newTestDAO(t, 1000)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(80)))

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	assert.False(t, passed)

	details, err := dao.GetProposalBasicDetails(id)
	require.Nil(t, err)
	assert.True(t, details.Executed)
	assert.False(t, details.Passed)
	assert.True(t, details.Rejected)

	// no disbursement happened
	assert.Equal(t, big.NewInt(90), dao.GetDAOBalance())
	assert.Equal(t, big.NewInt(0), dao.GetTotalFundedAmount())
}

func TestExecuteProposalMajorityFails(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 200)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	fund(ledger, bob, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(40)))
	require.Nil(t, dao.Vote(bob, id, false, big.NewInt(60)))

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	assert.False(t, passed)

	details, err := dao.GetProposalBasicDetails(id)
	require.Nil(t, err)
	assert.True(t, details.Rejected)
}

func TestDisbursementCappedByBalance(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 160)
	// goal far above what custody will hold
	id := createTestProposal(t, dao, ledger, 100000)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(80)))

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	require.True(t, passed)

	// payout is everything custody had: fee 10 + investment 80
	rec, err := dao.GetFundingRecord(1)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(90), rec.Amount)
	assert.Equal(t, big.NewInt(0), dao.GetDAOBalance())
}

func TestRefundInvestments(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 1000)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	fund(ledger, bob, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(50)))
	require.Nil(t, dao.Vote(bob, id, false, big.NewInt(30)))

	// refund only applies to resolved proposals
	err := dao.RefundInvestments(id)
	assert.ErrorIs(t, err, ErrNotExecuted)

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	require.False(t, passed)

	require.Nil(t, dao.RefundInvestments(id))

	aliceBalance, err := ledger.BalanceOf(context.Background(), alice)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), aliceBalance)
	bobBalance, err := ledger.BalanceOf(context.Background(), bob)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), bobBalance)

	// fee stays with the DAO, it is a sunk cost of proposing
	assert.Equal(t, big.NewInt(10), dao.GetDAOBalance())

	// vote records survive the refund
	inv, err := dao.GetInvestment(id, alice)
	require.Nil(t, err)
	require.NotNil(t, inv)
	assert.True(t, inv.Refunded)
	assert.Equal(t, big.NewInt(50), inv.Amount)

	err = dao.RefundInvestments(id)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestRefundRequiresRejection(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 160)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(80)))

	clock.advance(3601)
	passed, err := dao.ExecuteProposal(id)
	require.Nil(t, err)
	require.True(t, passed)

	err = dao.RefundInvestments(id)
	assert.ErrorIs(t, err, ErrNotRejected)
}

func TestDeposit(t *testing.T) {
	dao, ledger, _ := newTestDAO(t, 1000)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Deposit(alice, big.NewInt(40)))
	assert.Equal(t, big.NewInt(40), dao.GetDAOBalance())

	err := dao.Deposit(alice, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = dao.Deposit(alice, big.NewInt(1000))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	cfg := repo.DefaultConfig(t.TempDir())
	cfg.Governance.MinTokensForProposal = "100"
	cfg.Governance.MinVotingTokens = "10"
	cfg.Governance.ProposalFee = "10"
	cfg.Governance.VotingDuration = time.Hour
	cfg.MultiSig.Owners = []string{ownerA.Hex(), ownerB.Hex()}
	cfg.MultiSig.RequiredApprovals = 2

	ledger := NewMemLedger(big.NewInt(1000))
	fund(ledger, proposer, 200)

	logger := log.New()

	dao, err := NewDAO(context.Background(), cfg, ledger)
	require.Nil(t, err)

	_, err = dao.CreateProposal(proposer, "persisted", "Project", "https://x.io", big.NewInt(100))
	require.Nil(t, err)

	// a second engine over the same storage sees the same world
	reopened, err := newDAOWithStorage(context.Background(), cfg, ledger, logger, dao.DB)
	require.Nil(t, err)

	assert.Equal(t, []uint64{1}, reopened.GetAllProposalIDs())
	assert.Equal(t, big.NewInt(10), reopened.GetDAOBalance())

	details, err := reopened.GetProposalBasicDetails(1)
	require.Nil(t, err)
	assert.Equal(t, "persisted", details.Description)
}

func TestFinalizerExecutesDueProposals(t *testing.T) {
	dao, ledger, clock := newTestDAO(t, 160)
	id := createTestProposal(t, dao, ledger, 60)

	fund(ledger, alice, 100)
	require.Nil(t, dao.Vote(alice, id, true, big.NewInt(80)))

	clock.advance(3601)
	dao.finalizeDue()

	details, err := dao.GetProposalBasicDetails(id)
	require.Nil(t, err)
	assert.True(t, details.Executed)
	assert.True(t, details.Passed)

	// already executed proposals are skipped on the next sweep
	dao.finalizeDue()
	assert.Equal(t, big.NewInt(60), dao.GetTotalFundedAmount())
}
