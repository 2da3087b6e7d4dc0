package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// MultiSigRequest is the payload for a new admin action. Which fields are
// read depends on the action tag: set_parameter uses Param+Value, withdraw
// uses Value+Target, extend_voting uses ProposalID+Value (seconds), pause
// and unpause carry nothing.
type MultiSigRequest struct {
	Action     MultiSigAction
	Param      string
	Value      *big.Int
	Target     common.Address
	ProposalID uint64
}

// IsOwner reports whether addr belongs to the fixed owner set.
func (d *DAO) IsOwner(addr common.Address) bool {
	for _, o := range d.owners {
		if o == addr {
			return true
		}
	}
	return false
}

// CreateMultiSigProposal opens an admin action for approval. The creator's
// approval is implicit, so with a threshold of one the action applies
// immediately. Payloads are validated up front: a proposal that could never
// execute is rejected here instead of sitting pending forever.
func (d *DAO) CreateMultiSigProposal(owner common.Address, req MultiSigRequest) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.IsOwner(owner) {
		return 0, ErrNotOwner
	}
	if err := d.validateRequest(req); err != nil {
		return 0, err
	}

	now := d.now()
	id := d.nextID(multiSigCountKey)
	p := &MultiSigProposal{
		ID:             id,
		Proposer:       owner,
		Action:         req.Action,
		Param:          req.Param,
		Target:         req.Target,
		TargetProposal: req.ProposalID,
		Approvals:      []common.Address{owner},
		CreatedAt:      now,
	}
	if req.Value != nil {
		p.Value = new(big.Int).Set(req.Value)
	}

	// with a threshold of one the action applies as part of creation; if
	// the effect fails the whole creation is rolled back so the owner can
	// resubmit once the cause is fixed
	if uint64(len(p.Approvals)) >= d.state.RequiredApprovals {
		if err := d.executeMultiSig(p); err != nil {
			d.setCount(multiSigCountKey, id-1)
			return 0, err
		}
	} else {
		d.saveMultiSig(p)
	}

	d.emit(Event{
		Kind:       EventMultiSigProposalCreated,
		Timestamp:  now,
		MultiSigID: p.ID,
		Actor:      owner,
		Action:     req.Action,
		Param:      req.Param,
	})
	d.Logger.Infof("multisig proposal %d (%s) created by %s", p.ID, req.Action, owner.Hex())
	return p.ID, nil
}

// ApproveMultiSigProposal adds one owner approval. The approval that
// reaches the threshold also applies the action, there is no separate
// execute call and no window where a proposal sits executable but
// unexecuted.
func (d *DAO) ApproveMultiSigProposal(owner common.Address, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.IsOwner(owner) {
		return ErrNotOwner
	}

	p, err := d.loadMultiSig(id)
	if err != nil {
		return err
	}
	if p.Executed {
		return ErrMultiSigExecuted
	}
	if p.Approved(owner) {
		return ErrAlreadyApproved
	}

	p.Approvals = append(p.Approvals, owner)

	// the threshold-crossing approval is only consumed if the action effect
	// applies; on failure nothing is persisted and the same owner can retry
	// once the cause is fixed
	if uint64(len(p.Approvals)) >= d.state.RequiredApprovals {
		if err := d.executeMultiSig(p); err != nil {
			return err
		}
	} else {
		d.saveMultiSig(p)
	}

	d.emit(Event{
		Kind:       EventMultiSigApproved,
		MultiSigID: id,
		Actor:      owner,
		Action:     p.Action,
	})
	d.Logger.Infof("multisig proposal %d approved by %s (%d/%d)", id, owner.Hex(), len(p.Approvals), d.state.RequiredApprovals)
	return nil
}

// validateRequest rejects malformed payloads at creation time. Caller holds
// the write lock.
func (d *DAO) validateRequest(req MultiSigRequest) error {
	switch req.Action {
	case ActionPause, ActionUnpause:
		return nil

	case ActionSetParameter:
		if req.Value == nil || req.Value.Sign() < 0 {
			return ErrParameterOutOfRange
		}
		switch req.Param {
		case ParamMinTokensForProposal, ParamMinVotingTokens, ParamProposalFee:
			return nil
		case ParamMinQuorumPercent:
			if req.Value.Cmp(big.NewInt(100)) > 0 {
				return ErrParameterOutOfRange
			}
			return nil
		case ParamVotingDuration:
			if req.Value.Sign() == 0 {
				return ErrParameterOutOfRange
			}
			return nil
		case ParamRequiredApprovals:
			if req.Value.Sign() == 0 || req.Value.Cmp(big.NewInt(int64(len(d.owners)))) > 0 {
				return ErrParameterOutOfRange
			}
			return nil
		default:
			return ErrUnknownParameter
		}

	case ActionWithdraw:
		if req.Value == nil || req.Value.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if req.Target == (common.Address{}) {
			return ErrInvalidTarget
		}
		return nil

	case ActionExtendVoting:
		if req.Value == nil || req.Value.Sign() <= 0 {
			return ErrInvalidAmount
		}
		p, err := d.loadProposal(req.ProposalID)
		if err != nil {
			return err
		}
		if p.Executed {
			return ErrAlreadyExecuted
		}
		return nil

	default:
		return ErrUnknownAction
	}
}

// executeMultiSig dispatches the action effect exactly once, atomically
// with the threshold-crossing approval. Caller holds the write lock.
func (d *DAO) executeMultiSig(p *MultiSigProposal) error {
	now := d.now()

	switch p.Action {
	case ActionPause:
		d.state.Paused = true
		d.saveState()
		d.emit(Event{Kind: EventPaused, MultiSigID: p.ID})

	case ActionUnpause:
		d.state.Paused = false
		d.saveState()
		d.emit(Event{Kind: EventUnpaused, MultiSigID: p.ID})

	case ActionSetParameter:
		if err := d.applyParameter(p.Param, p.Value); err != nil {
			return err
		}
		d.saveState()
		d.emit(Event{
			Kind:       EventParameterUpdated,
			MultiSigID: p.ID,
			Param:      p.Param,
			Amount:     p.Value,
		})

	case ActionWithdraw:
		if p.Value.Cmp(d.state.Balance) > 0 {
			return ErrInsufficientDAOBalance
		}
		if err := d.Ledger.Transfer(d.Ctx, p.Target, p.Value); err != nil {
			return errors.Wrap(err, "withdraw funds")
		}
		d.state.Balance = new(big.Int).Sub(d.state.Balance, p.Value)
		d.saveState()
		d.emit(Event{
			Kind:       EventFundsWithdrawn,
			MultiSigID: p.ID,
			Actor:      p.Target,
			Amount:     p.Value,
		})

	case ActionExtendVoting:
		target, err := d.loadProposal(p.TargetProposal)
		if err != nil {
			return err
		}
		if target.Executed {
			return ErrAlreadyExecuted
		}
		target.EndTime += p.Value.Int64()
		d.saveProposal(target)
		d.emit(Event{
			Kind:       EventVotingExtended,
			MultiSigID: p.ID,
			ProposalID: target.ID,
			Amount:     p.Value,
		})

	default:
		return ErrUnknownAction
	}

	p.Executed = true
	p.ExecutedAt = now
	d.saveMultiSig(p)

	d.Logger.Infof("multisig proposal %d (%s) executed", p.ID, p.Action)
	return nil
}

// applyParameter updates one governance parameter with range validation.
func (d *DAO) applyParameter(param string, value *big.Int) error {
	switch param {
	case ParamMinTokensForProposal:
		d.state.MinTokensForProposal = new(big.Int).Set(value)
	case ParamMinVotingTokens:
		d.state.MinVotingTokens = new(big.Int).Set(value)
	case ParamMinQuorumPercent:
		if value.Cmp(big.NewInt(100)) > 0 {
			return ErrParameterOutOfRange
		}
		d.state.MinQuorumPercent = value.Uint64()
	case ParamProposalFee:
		d.state.ProposalFee = new(big.Int).Set(value)
	case ParamVotingDuration:
		if value.Sign() <= 0 {
			return ErrParameterOutOfRange
		}
		d.state.VotingDurationSecs = value.Int64()
	case ParamRequiredApprovals:
		n := value.Uint64()
		if n == 0 || n > uint64(len(d.owners)) {
			return ErrParameterOutOfRange
		}
		d.state.RequiredApprovals = n
	default:
		return ErrUnknownParameter
	}
	return nil
}
