package core

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const EventChanMaxSize = 1000

type EventKind string

const (
	EventProposalCreated         EventKind = "proposal_created"
	EventVoted                   EventKind = "voted"
	EventProposalExecuted        EventKind = "proposal_executed"
	EventInvestmentsRefunded     EventKind = "investments_refunded"
	EventMultiSigProposalCreated EventKind = "multisig_proposal_created"
	EventMultiSigApproved        EventKind = "multisig_approved"
	EventPaused                  EventKind = "paused"
	EventUnpaused                EventKind = "unpaused"
	EventParameterUpdated        EventKind = "parameter_updated"
	EventVotingExtended          EventKind = "voting_extended"
	EventFundsDeposited          EventKind = "funds_deposited"
	EventFundsWithdrawn          EventKind = "funds_withdrawn"
)

// Event is one entry of the append-only log. The log is the only
// notification mechanism external observers get: the query layer and UI
// subscribe instead of polling full state.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`

	ProposalID  uint64         `json:"proposal_id,omitempty"`
	MultiSigID  uint64         `json:"multisig_id,omitempty"`
	Actor       common.Address `json:"actor,omitempty"`
	Amount      *big.Int       `json:"amount,omitempty"`
	Support     bool           `json:"support,omitempty"`
	Passed      bool           `json:"passed,omitempty"`
	Action      MultiSigAction `json:"action,omitempty"`
	Param       string         `json:"param,omitempty"`
	Description string         `json:"description,omitempty"`
}

// emit assigns the next sequence number, persists the event and fans it out
// to subscribers. Slow subscribers are skipped rather than blocking a
// mutating operation.
func (d *DAO) emit(ev Event) {
	ev.Seq = d.nextID(eventCountKey)
	if ev.Timestamp == 0 {
		ev.Timestamp = d.now()
	}

	data, err := json.Marshal(&ev)
	if err != nil {
		panic(errors.Wrap(err, "marshal event"))
	}
	d.DB.Put(eventKey(ev.Seq), data)

	d.subMu.Lock()
	for _, ch := range d.subscribers {
		select {
		case ch <- ev:
		default:
			d.Logger.Warnf("event subscriber full, dropping event %d", ev.Seq)
		}
	}
	d.subMu.Unlock()
}

// Subscribe registers a new event listener. The returned channel is buffered
// with EventChanMaxSize entries and receives every event emitted after the
// call.
func (d *DAO) Subscribe() <-chan Event {
	ch := make(chan Event, EventChanMaxSize)
	d.subMu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.subMu.Unlock()
	return ch
}

// Events replays up to limit persisted events starting at sequence number
// from (inclusive). A zero limit means no bound.
func (d *DAO) Events(from uint64, limit int) ([]Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if from == 0 {
		from = 1
	}
	last := d.getCount(eventCountKey)

	var out []Event
	for seq := from; seq <= last; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		data := d.DB.Get(eventKey(seq))
		if data == nil {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, errors.Wrapf(err, "unmarshal event %d", seq)
		}
		out = append(out, ev)
	}
	return out, nil
}
