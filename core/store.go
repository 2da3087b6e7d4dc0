package core

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Storage layout. Records are JSON blobs under byte-prefixed keys; sequence
// counters are 8-byte big-endian integers so ids stay monotonic across
// restarts.
const (
	kProposal   byte = 0x01
	kInvestment byte = 0x02
	kVoterIndex byte = 0x03
	kMultiSig   byte = 0x04
	kFunding    byte = 0x05
	kEvent      byte = 0x06
)

const (
	govStateKey = "state"

	proposalCountKey = "count:proposals"
	multiSigCountKey = "count:multisig"
	fundingCountKey  = "count:funding"
	eventCountKey    = "count:events"
)

func prefixedKey(prefix byte, id uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

func proposalKey(id uint64) []byte {
	return prefixedKey(kProposal, id)
}

// investmentKey mixes the proposal id with the voter address, one record per
// (proposal, voter) pair.
func investmentKey(proposalID uint64, voter common.Address) []byte {
	key := make([]byte, 0, 9+common.AddressLength)
	key = append(key, kInvestment)
	key = binary.BigEndian.AppendUint64(key, proposalID)
	key = append(key, voter.Bytes()...)
	return key
}

func voterIndexKey(proposalID uint64) []byte {
	return prefixedKey(kVoterIndex, proposalID)
}

func multiSigKey(id uint64) []byte {
	return prefixedKey(kMultiSig, id)
}

func fundingKey(id uint64) []byte {
	return prefixedKey(kFunding, id)
}

func eventKey(seq uint64) []byte {
	return prefixedKey(kEvent, seq)
}

func (d *DAO) getCount(key string) uint64 {
	data := d.DB.Get([]byte(key))
	if data == nil {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func (d *DAO) setCount(key string, n uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	d.DB.Put([]byte(key), buf)
}

// nextID bumps the counter under key and returns the new value. Ids start
// at 1.
func (d *DAO) nextID(key string) uint64 {
	n := d.getCount(key) + 1
	d.setCount(key, n)
	return n
}

func (d *DAO) saveProposal(p *Proposal) {
	data, err := json.Marshal(p)
	if err != nil {
		// all proposal fields are plain marshalable types
		panic(errors.Wrap(err, "marshal proposal"))
	}
	d.DB.Put(proposalKey(p.ID), data)
}

func (d *DAO) loadProposal(id uint64) (*Proposal, error) {
	data := d.DB.Get(proposalKey(id))
	if data == nil {
		return nil, ErrProposalNotFound
	}
	p := &Proposal{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "unmarshal proposal %d", id)
	}
	return p, nil
}

func (d *DAO) saveInvestment(inv *Investment) {
	data, err := json.Marshal(inv)
	if err != nil {
		panic(errors.Wrap(err, "marshal investment"))
	}
	d.DB.Put(investmentKey(inv.ProposalID, inv.Voter), data)
}

// loadInvestment returns nil with no error when the address has not voted.
// A record that exists but does not decode is an error, never "has not
// voted": treating it as absent would admit a second vote.
func (d *DAO) loadInvestment(proposalID uint64, voter common.Address) (*Investment, error) {
	data := d.DB.Get(investmentKey(proposalID, voter))
	if data == nil {
		return nil, nil
	}
	inv := &Investment{}
	if err := json.Unmarshal(data, inv); err != nil {
		return nil, errors.Wrapf(err, "unmarshal investment %d/%s", proposalID, voter.Hex())
	}
	return inv, nil
}

// saveVoters keeps a per-proposal address list so investor queries do not
// need storage iteration.
func (d *DAO) saveVoters(proposalID uint64, voters []common.Address) {
	data, err := json.Marshal(voters)
	if err != nil {
		panic(errors.Wrap(err, "marshal voter index"))
	}
	d.DB.Put(voterIndexKey(proposalID), data)
}

func (d *DAO) loadVoters(proposalID uint64) ([]common.Address, error) {
	data := d.DB.Get(voterIndexKey(proposalID))
	if data == nil {
		return nil, nil
	}
	var voters []common.Address
	if err := json.Unmarshal(data, &voters); err != nil {
		return nil, errors.Wrapf(err, "unmarshal voter index %d", proposalID)
	}
	return voters, nil
}

func (d *DAO) saveMultiSig(p *MultiSigProposal) {
	data, err := json.Marshal(p)
	if err != nil {
		panic(errors.Wrap(err, "marshal multisig proposal"))
	}
	d.DB.Put(multiSigKey(p.ID), data)
}

func (d *DAO) loadMultiSig(id uint64) (*MultiSigProposal, error) {
	data := d.DB.Get(multiSigKey(id))
	if data == nil {
		return nil, ErrMultiSigNotFound
	}
	p := &MultiSigProposal{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "unmarshal multisig proposal %d", id)
	}
	return p, nil
}

func (d *DAO) appendFundingRecord(rec *FundingRecord) {
	rec.ID = d.nextID(fundingCountKey)
	data, err := json.Marshal(rec)
	if err != nil {
		panic(errors.Wrap(err, "marshal funding record"))
	}
	d.DB.Put(fundingKey(rec.ID), data)
}

func (d *DAO) loadFundingRecord(id uint64) (*FundingRecord, error) {
	data := d.DB.Get(fundingKey(id))
	if data == nil {
		return nil, errors.Errorf("funding record %d not found", id)
	}
	rec := &FundingRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, errors.Wrapf(err, "unmarshal funding record %d", id)
	}
	return rec, nil
}

func (d *DAO) saveState() {
	data, err := json.Marshal(d.state)
	if err != nil {
		panic(errors.Wrap(err, "marshal governance state"))
	}
	d.DB.Put([]byte(govStateKey), data)
}

func (d *DAO) loadState() (*govState, error) {
	data := d.DB.Get([]byte(govStateKey))
	if data == nil {
		return nil, nil
	}
	st := &govState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrap(err, "unmarshal governance state")
	}
	return st, nil
}
