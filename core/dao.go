package core

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ganjes-dao/govcore/repo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DAO is the governance state machine: proposal lifecycle, token-weighted
// voting, execution and disbursement, plus the multisig admin controller in
// multisig.go. Every mutating operation holds the write lock for its whole
// read-modify-write span, so checks and effects are indivisible even when
// the engine is driven from concurrent goroutines.
type DAO struct {
	Ctx    context.Context
	Logger *logrus.Logger
	DB     storage.Storage
	Config *repo.Config
	Ledger TokenLedger

	owners []common.Address
	state  *govState

	mu    sync.RWMutex
	subMu sync.Mutex

	subscribers []chan Event

	// nowFn is swapped out by tests to drive deadlines.
	nowFn func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDAO(ctx context.Context, config *repo.Config, ledger TokenLedger) (*DAO, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))

	db, err := leveldb.New(filepath.Join(config.RepoRoot, repo.StorageDirName))
	if err != nil {
		return nil, err
	}

	return newDAOWithStorage(ctx, config, ledger, logger, db)
}

func newDAOWithStorage(ctx context.Context, config *repo.Config, ledger TokenLedger, logger *logrus.Logger, db storage.Storage) (*DAO, error) {
	owners := make([]common.Address, 0, len(config.MultiSig.Owners))
	for _, raw := range config.MultiSig.Owners {
		owners = append(owners, common.HexToAddress(raw))
	}
	if len(owners) > 0 && (config.MultiSig.RequiredApprovals == 0 || config.MultiSig.RequiredApprovals > uint64(len(owners))) {
		return nil, errors.Errorf("required approvals %d out of range for %d owners", config.MultiSig.RequiredApprovals, len(owners))
	}

	d := &DAO{
		Ctx:    ctx,
		Logger: logger,
		DB:     db,
		Config: config,
		Ledger: ledger,
		owners: owners,
		nowFn:  time.Now,
	}

	// runtime parameter changes survive restarts, so the persisted state
	// wins over the config seed
	st, err := d.loadState()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st, err = seedState(config)
		if err != nil {
			return nil, err
		}
		d.state = st
		d.saveState()
	} else {
		d.state = st
	}

	return d, nil
}

func seedState(config *repo.Config) (*govState, error) {
	minPropose, err := parseAmount(config.Governance.MinTokensForProposal)
	if err != nil {
		return nil, errors.Wrap(err, "min_tokens_for_proposal")
	}
	minVote, err := parseAmount(config.Governance.MinVotingTokens)
	if err != nil {
		return nil, errors.Wrap(err, "min_voting_tokens")
	}
	fee, err := parseAmount(config.Governance.ProposalFee)
	if err != nil {
		return nil, errors.Wrap(err, "proposal_fee")
	}
	if config.Governance.MinQuorumPercent > 100 {
		return nil, errors.Errorf("min_quorum_percent %d out of range", config.Governance.MinQuorumPercent)
	}

	return &govState{
		Paused:               false,
		Balance:              big.NewInt(0),
		MinTokensForProposal: minPropose,
		MinVotingTokens:      minVote,
		MinQuorumPercent:     config.Governance.MinQuorumPercent,
		ProposalFee:          fee,
		VotingDurationSecs:   int64(config.Governance.VotingDuration / time.Second),
		RequiredApprovals:    config.MultiSig.RequiredApprovals,
	}, nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

// Start launches the background finalizer that executes proposals whose
// voting window has closed. Execution is permissionless, the daemon is just
// the caller of last resort.
func (d *DAO) Start() error {
	ctx, cancel := context.WithCancel(d.Ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	interval := d.Config.Governance.FinalizeInterval
	if interval <= 0 {
		close(d.done)
		d.Logger.Info("finalizer disabled")
		return nil
	}

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		d.Logger.Info("finalizer started")
		for {
			select {
			case <-ctx.Done():
				d.Logger.Info("finalizer stopped")
				return
			case <-ticker.C:
				d.finalizeDue()
			}
		}
	}()

	return nil
}

func (d *DAO) Stop() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	return nil
}

// finalizeDue executes every proposal past its deadline. Failures on one
// proposal do not stop the sweep.
func (d *DAO) finalizeDue() {
	total := func() uint64 {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.getCount(proposalCountKey)
	}()

	for id := uint64(1); id <= total; id++ {
		d.mu.RLock()
		p, err := d.loadProposal(id)
		due := err == nil && !p.Executed && d.now() >= p.EndTime
		d.mu.RUnlock()
		if !due {
			continue
		}

		passed, err := d.ExecuteProposal(id)
		if err != nil {
			d.Logger.Errorf("finalize proposal %d error: %s", id, err)
			continue
		}
		d.Logger.Infof("finalized proposal %d, passed=%v", id, passed)
	}
}

func (d *DAO) now() int64 {
	return d.nowFn().Unix()
}

// CreateProposal registers a funding request. The proposal fee is pulled
// from the proposer before anything is persisted; if the pull fails the
// operation leaves no trace.
func (d *DAO) CreateProposal(proposer common.Address, description, projectName, projectUrl string, fundingGoal *big.Int) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Paused {
		return 0, ErrPaused
	}
	if fundingGoal == nil || fundingGoal.Sign() <= 0 {
		return 0, ErrInvalidFundingGoal
	}
	if strings.TrimSpace(description) == "" || strings.TrimSpace(projectName) == "" || strings.TrimSpace(projectUrl) == "" {
		return 0, ErrEmptyMetadata
	}

	balance, err := d.Ledger.BalanceOf(d.Ctx, proposer)
	if err != nil {
		return 0, errors.Wrap(err, "query proposer balance")
	}
	if balance.Cmp(d.state.MinTokensForProposal) < 0 {
		return 0, ErrInsufficientTokens
	}

	fee := d.state.ProposalFee
	if fee.Sign() > 0 {
		allowance, err := d.Ledger.Allowance(d.Ctx, proposer, d.Ledger.Custody())
		if err != nil {
			return 0, errors.Wrap(err, "query proposer allowance")
		}
		if allowance.Cmp(fee) < 0 {
			return 0, ErrInsufficientAllowance
		}
		if err := d.Ledger.TransferFrom(d.Ctx, proposer, d.Ledger.Custody(), fee); err != nil {
			return 0, errors.Wrap(err, "collect proposal fee")
		}
	}

	now := d.now()
	p := &Proposal{
		ID:                d.nextID(proposalCountKey),
		Proposer:          proposer,
		Description:       description,
		ProjectName:       projectName,
		ProjectUrl:        projectUrl,
		FundingGoal:       new(big.Int).Set(fundingGoal),
		TotalVotesFor:     big.NewInt(0),
		TotalVotesAgainst: big.NewInt(0),
		TotalInvested:     big.NewInt(0),
		ProposalFee:       new(big.Int).Set(fee),
		CreatedAt:         now,
		EndTime:           now + d.state.VotingDurationSecs,
	}
	d.saveProposal(p)

	d.state.Balance = new(big.Int).Add(d.state.Balance, fee)
	d.saveState()

	d.emit(Event{
		Kind:        EventProposalCreated,
		Timestamp:   now,
		ProposalID:  p.ID,
		Actor:       proposer,
		Amount:      p.FundingGoal,
		Description: description,
	})

	d.Logger.Infof("proposal %d created by %s, funding goal %s", p.ID, proposer.Hex(), fundingGoal.String())
	return p.ID, nil
}

// Vote commits investment tokens to one side of a proposal. Vote weight is
// the invested amount, not one-address-one-vote.
func (d *DAO) Vote(voter common.Address, proposalID uint64, support bool, amount *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Paused {
		return ErrPaused
	}

	p, err := d.loadProposal(proposalID)
	if err != nil {
		return err
	}
	if p.Executed || d.now() >= p.EndTime {
		return ErrVotingClosed
	}
	if voter == p.Proposer {
		return ErrProposerCannotVote
	}
	existing, err := d.loadInvestment(proposalID, voter)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyVoted
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(d.state.MinVotingTokens) < 0 {
		return ErrInvestmentTooSmall
	}

	// read the voter index up front so an unreadable index aborts before
	// any tokens move
	voters, err := d.loadVoters(proposalID)
	if err != nil {
		return err
	}

	balance, err := d.Ledger.BalanceOf(d.Ctx, voter)
	if err != nil {
		return errors.Wrap(err, "query voter balance")
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	allowance, err := d.Ledger.Allowance(d.Ctx, voter, d.Ledger.Custody())
	if err != nil {
		return errors.Wrap(err, "query voter allowance")
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}

	if err := d.Ledger.TransferFrom(d.Ctx, voter, d.Ledger.Custody(), amount); err != nil {
		return errors.Wrap(err, "collect investment")
	}

	now := d.now()
	inv := &Investment{
		ProposalID: proposalID,
		Voter:      voter,
		Amount:     new(big.Int).Set(amount),
		Support:    support,
		Timestamp:  now,
	}
	d.saveInvestment(inv)
	d.saveVoters(proposalID, append(voters, voter))

	if support {
		p.TotalVotesFor = new(big.Int).Add(p.TotalVotesFor, amount)
		p.VotersFor++
	} else {
		p.TotalVotesAgainst = new(big.Int).Add(p.TotalVotesAgainst, amount)
		p.VotersAgainst++
	}
	p.TotalInvested = new(big.Int).Add(p.TotalInvested, amount)
	d.saveProposal(p)

	d.state.Balance = new(big.Int).Add(d.state.Balance, amount)
	d.saveState()

	d.emit(Event{
		Kind:       EventVoted,
		Timestamp:  now,
		ProposalID: proposalID,
		Actor:      voter,
		Amount:     inv.Amount,
		Support:    support,
	})

	d.Logger.Infof("vote on proposal %d by %s, support=%v, weight %s", proposalID, voter.Hex(), support, amount.String())
	return nil
}

// ExecuteProposal resolves a proposal once its voting window has closed.
// Quorum is token-weight participation measured against the reference
// supply; approval additionally needs a simple weight majority. Execution
// happens at most once, a second call reports ErrAlreadyExecuted with no
// side effects.
func (d *DAO) ExecuteProposal(proposalID uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.loadProposal(proposalID)
	if err != nil {
		return false, err
	}
	if p.Executed {
		return false, ErrAlreadyExecuted
	}
	if d.now() < p.EndTime {
		return false, ErrVotingNotEnded
	}

	supply, err := d.Ledger.TotalSupply(d.Ctx)
	if err != nil {
		return false, errors.Wrap(err, "query total supply")
	}

	participation := new(big.Int).Add(p.TotalVotesFor, p.TotalVotesAgainst)
	quorumMet := new(big.Int).Mul(participation, big.NewInt(100)).
		Cmp(new(big.Int).Mul(supply, new(big.Int).SetUint64(d.state.MinQuorumPercent))) >= 0
	passed := quorumMet && p.TotalVotesFor.Cmp(p.TotalVotesAgainst) > 0

	now := d.now()
	payout := big.NewInt(0)
	if passed {
		// disbursement is capped by what custody actually holds
		payout = new(big.Int).Set(p.FundingGoal)
		if payout.Cmp(d.state.Balance) > 0 {
			payout = new(big.Int).Set(d.state.Balance)
		}
		if payout.Sign() > 0 {
			if err := d.Ledger.Transfer(d.Ctx, p.Proposer, payout); err != nil {
				return false, errors.Wrap(err, "disburse funding")
			}
		}

		p.Executed = true
		p.Passed = true
		d.saveProposal(p)

		d.state.Balance = new(big.Int).Sub(d.state.Balance, payout)
		d.saveState()

		d.appendFundingRecord(&FundingRecord{
			ProposalID: proposalID,
			Recipient:  p.Proposer,
			Amount:     payout,
			Timestamp:  now,
		})
	} else {
		p.Executed = true
		p.Rejected = true
		d.saveProposal(p)
	}

	d.emit(Event{
		Kind:       EventProposalExecuted,
		Timestamp:  now,
		ProposalID: proposalID,
		Amount:     payout,
		Passed:     passed,
	})

	d.Logger.Infof("proposal %d executed, passed=%v, quorum=%v, disbursed %s", proposalID, passed, quorumMet, payout.String())
	return passed, nil
}

// RefundInvestments returns voter investments of a rejected proposal. The
// proposal fee stays with the DAO, it is a sunk cost of proposing. Each
// investment is flagged as it is refunded, so a transfer failure midway
// leaves a resumable state: calling again skips what already went out.
func (d *DAO) RefundInvestments(proposalID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.loadProposal(proposalID)
	if err != nil {
		return err
	}
	if !p.Executed {
		return ErrNotExecuted
	}
	if !p.Rejected {
		return ErrNotRejected
	}
	if p.Refunded {
		return ErrAlreadyRefunded
	}

	voters, err := d.loadVoters(proposalID)
	if err != nil {
		return err
	}

	total := big.NewInt(0)
	for _, voter := range voters {
		inv, err := d.loadInvestment(proposalID, voter)
		if err != nil {
			return err
		}
		if inv == nil || inv.Refunded {
			continue
		}
		if err := d.Ledger.Transfer(d.Ctx, voter, inv.Amount); err != nil {
			return errors.Wrapf(err, "refund %s", voter.Hex())
		}
		inv.Refunded = true
		d.saveInvestment(inv)

		d.state.Balance = new(big.Int).Sub(d.state.Balance, inv.Amount)
		d.saveState()

		total = new(big.Int).Add(total, inv.Amount)
	}

	p.Refunded = true
	d.saveProposal(p)

	d.emit(Event{
		Kind:       EventInvestmentsRefunded,
		ProposalID: proposalID,
		Amount:     total,
	})

	d.Logger.Infof("refunded %s to voters of proposal %d", total.String(), proposalID)
	return nil
}

// Deposit pulls tokens from a depositor into DAO custody. Allowed while
// paused, the pause flag only gates proposal creation and voting.
func (d *DAO) Deposit(depositor common.Address, amount *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	balance, err := d.Ledger.BalanceOf(d.Ctx, depositor)
	if err != nil {
		return errors.Wrap(err, "query depositor balance")
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	allowance, err := d.Ledger.Allowance(d.Ctx, depositor, d.Ledger.Custody())
	if err != nil {
		return errors.Wrap(err, "query depositor allowance")
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}

	if err := d.Ledger.TransferFrom(d.Ctx, depositor, d.Ledger.Custody(), amount); err != nil {
		return errors.Wrap(err, "collect deposit")
	}

	d.state.Balance = new(big.Int).Add(d.state.Balance, amount)
	d.saveState()

	d.emit(Event{
		Kind:   EventFundsDeposited,
		Actor:  depositor,
		Amount: new(big.Int).Set(amount),
	})

	d.Logger.Infof("deposit %s from %s", amount.String(), depositor.Hex())
	return nil
}
