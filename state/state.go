package state

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/calehh/agora-app/config"
	"github.com/calehh/agora-app/tx"
	"github.com/calehh/agora-app/types"
	abci_types "github.com/cometbft/cometbft/abci/types"
	cmtcrypto "github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/ed25519"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	StartAccountIdx = 65536

	ModifiedFlagNew = 1 << 0
	ModifiedFlagMod = 1 << 1
	ModifiedFlagPK  = 1 << 2

	MaxValidators = 100
)

var (
	ErrNotFound = errors.New("not found")
)

var (
	KeyState         = "s"
	KeyAccountIndex  = "i%s"
	KeyAccountBody   = "a%x"
	KeyProposalBody  = "p%v"
	KeyProposalIndex = "pi"
	KeyVoteRecord    = "v%v"
	KeyTokenAddress  = "o"
)

var (
	ErrTxValidatorNotFound  = errors.New("validator account not found")
	ErrTxNonceInvalid       = errors.New("nonce invalid")
	ErrTxSigInvalid         = errors.New("signature invalid")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrTreasuryNotFound     = errors.New("treasury account not found")
	ErrInsufficientTreasury = errors.New("insufficient treasury balance")
	ErrOneActionInOneBlock  = errors.New("one action in one block")
)

// TreasuryAddress is the pubkey-less account accepted proposals are paid
// from. It is funded at genesis and holds no key, so nothing can spend it
// except an executed proposal.
var TreasuryAddress = common.BytesToAddress(crypto.Keccak256([]byte("agora/treasury"))[12:])

type State struct {
	logger cmtlog.Logger
	db     *iavl.MutableTree
	dbVer  int64

	header     *StateHeader
	validators []abci_types.ValidatorUpdate
	idxs       map[string]uint64
	acnts      map[uint64]*Account

	modifiedAcnts map[uint64]uint32

	// proposalIdx is the next proposal id to assign; ids are dense from 0.
	proposalIdx      uint64
	proposalIdxDirty bool
	modProposals     map[uint64]*types.Proposal
	modVotes         map[uint64]*types.VoteTally

	tokenAddr  string
	tokenDirty bool
}

func newState(db *iavl.MutableTree, logger cmtlog.Logger) *State {
	s := &State{
		logger:        logger,
		db:            db,
		dbVer:         0,
		header:        new(StateHeader),
		validators:    []abci_types.ValidatorUpdate{},
		idxs:          make(map[string]uint64),
		acnts:         make(map[uint64]*Account),
		modifiedAcnts: make(map[uint64]uint32),
		modProposals:  make(map[uint64]*types.Proposal),
		modVotes:      make(map[uint64]*types.VoteTally),
	}
	s.header.AccountIdx = StartAccountIdx
	return s
}

func (s *State) nextState() *State {
	n := &State{
		logger:        s.logger,
		db:            s.db,
		dbVer:         s.dbVer,
		idxs:          make(map[string]uint64),
		acnts:         make(map[uint64]*Account),
		modifiedAcnts: make(map[uint64]uint32),
		proposalIdx:   s.proposalIdx,
		modProposals:  make(map[uint64]*types.Proposal),
		modVotes:      make(map[uint64]*types.VoteTally),
		tokenAddr:     s.tokenAddr,
	}
	n.header = s.header.Clone()
	if s.header.Hash != nil {
		n.header.Height = s.header.Height + 1
	}

	return n
}

func deepCopyMap[K comparable, V any](source map[K]V) map[K]V {
	res := make(map[K]V)
	for k, v := range source {
		switch x := any(v).(type) {
		case *Account:
			res[k] = any(x.Clone()).(V)
		case *types.Proposal:
			res[k] = any(x.Clone()).(V)
		case *types.VoteTally:
			res[k] = any(x.Clone()).(V)
		default:
			res[k] = v
		}
	}
	return res
}

func deepCopySlice[E any](source []E) []E {
	res := make([]E, len(source))
	if len(source) == 0 {
		return res
	}
	for idx, ele := range source {
		switch e := any(ele).(type) {
		case abci_types.ValidatorUpdate:
			b, _ := e.Marshal()
			eleClone := abci_types.ValidatorUpdate{}
			eleClone.Unmarshal(b)
			res[idx] = any(eleClone).(E)
		default:
			copy(res, source)
			return res
		}
	}
	return res
}

func (s *State) Clone() *State {
	n := &State{
		logger:           s.logger,
		db:               s.db,
		dbVer:            s.dbVer,
		validators:       deepCopySlice(s.validators),
		idxs:             deepCopyMap(s.idxs),
		acnts:            deepCopyMap(s.acnts),
		modifiedAcnts:    deepCopyMap(s.modifiedAcnts),
		proposalIdx:      s.proposalIdx,
		proposalIdxDirty: s.proposalIdxDirty,
		modProposals:     deepCopyMap(s.modProposals),
		modVotes:         deepCopyMap(s.modVotes),
		tokenAddr:        s.tokenAddr,
		tokenDirty:       s.tokenDirty,
	}
	n.header = s.header.Clone()
	if s.header.Hash != nil {
		n.header.Height = s.header.Height + 1
	}
	return n
}

func (s *State) load() (err error) {
	val, err := s.db.Get([]byte(KeyProposalIndex))
	if err != nil {
		if err != leveldb.ErrNotFound {
			return err
		}
	}
	s.proposalIdx = new(big.Int).SetBytes(val).Uint64()
	val, err = s.db.Get([]byte(KeyTokenAddress))
	if err != nil {
		if err != leveldb.ErrNotFound {
			return err
		}
	}
	s.tokenAddr = string(val)
	val, err = s.db.Get([]byte(KeyState))
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil
		}
		return err
	}
	if val != nil {
		err = json.Unmarshal(val, s.header)
		if err != nil {
			return
		}
		h := s.db.Hash()
		if h != nil {
			s.calcHash(h, true)
		}
	}
	return
}

func (s *State) calcHash(rootHash []byte, update bool) (h common.Hash) {
	h = crypto.Keccak256Hash(rootHash)
	if update {
		if s.header.RootHash == nil {
			s.header.RootHash = make([]byte, len(rootHash))
		}
		copy(s.header.RootHash, rootHash)
		if s.header.Hash == nil {
			s.header.Hash = make([]byte, len(h))
		}
		copy(s.header.Hash, h[:])
	}
	return
}

func (s *State) Update() (h common.Hash, err error) {
	var hash []byte
	defer func() {
		if hash == nil {
			s.db.Rollback()
		}
	}()
	var val []byte
	val, err = json.Marshal(s.header)
	if err != nil {
		return
	}
	_, err = s.db.Set([]byte(KeyState), val)
	if err != nil {
		return
	}

	if s.proposalIdxDirty {
		_, err = s.db.Set([]byte(KeyProposalIndex), new(big.Int).SetUint64(s.proposalIdx).Bytes())
		if err != nil {
			return
		}
	}

	if len(s.modProposals) > 0 {
		ids := make([]uint64, 0, len(s.modProposals))
		for id := range s.modProposals {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			key := fmt.Sprintf(KeyProposalBody, id)
			val, err = json.Marshal(s.modProposals[id])
			if err != nil {
				return
			}
			_, err = s.db.Set([]byte(key), val)
			if err != nil {
				return
			}
		}
	}

	if len(s.modVotes) > 0 {
		ids := make([]uint64, 0, len(s.modVotes))
		for id := range s.modVotes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			key := fmt.Sprintf(KeyVoteRecord, id)
			val, err = json.Marshal(s.modVotes[id])
			if err != nil {
				return
			}
			_, err = s.db.Set([]byte(key), val)
			if err != nil {
				return
			}
		}
	}

	if s.tokenDirty {
		_, err = s.db.Set([]byte(KeyTokenAddress), []byte(s.tokenAddr))
		if err != nil {
			return
		}
	}

	n := len(s.modifiedAcnts)
	if n > 0 {
		idxs := make([]uint64, n)
		i := 0
		for idx := range s.modifiedAcnts {
			idxs[i] = idx
			i += 1
		}
		sort.Slice(idxs, func(i, j int) bool {
			return idxs[i] < idxs[j]
		})
		for _, idx := range idxs {
			flag := s.modifiedAcnts[idx]
			acnt := s.acnts[idx]
			key := fmt.Sprintf(KeyAccountBody, acnt.Index)
			val, err = json.Marshal(acnt)
			if err != nil {
				return
			}
			_, err = s.db.Set([]byte(key), val)
			if err != nil {
				return
			}
			if (flag&ModifiedFlagNew == ModifiedFlagNew) || (flag&ModifiedFlagPK == ModifiedFlagPK) {
				key = fmt.Sprintf(KeyAccountIndex, acnt.Address())
				val, err = rlp.EncodeToBytes(acnt.Index)
				if err != nil {
					return
				}
				_, err = s.db.Set([]byte(key), val)
				if err != nil {
					return
				}
			}
		}
	}
	hash = s.db.WorkingHash()
	h = s.calcHash(hash, false)
	s.modifiedAcnts = make(map[uint64]uint32)
	s.modProposals = make(map[uint64]*types.Proposal)
	s.modVotes = make(map[uint64]*types.VoteTally)
	s.proposalIdxDirty = false
	s.tokenDirty = false
	return
}

func (s *State) save() (h common.Hash, err error) {
	hash, ver, err := s.db.SaveVersion()
	if err != nil {
		return h, err
	}

	s.dbVer = ver
	h = s.calcHash(hash, true)

	return
}

// AllocateProposalID hands out the next dense proposal id and marks the
// counter dirty for the next Update.
func (s *State) AllocateProposalID() (uint64, error) {
	id := s.proposalIdx
	s.proposalIdx += 1
	s.proposalIdxDirty = true
	return id, nil
}

func (s *State) ProposalCount() uint64 {
	return s.proposalIdx
}

// Proposal returns (nil, nil) for ids that were never assigned.
func (s *State) Proposal(id uint64) (prop *types.Proposal, err error) {
	if id >= s.proposalIdx {
		return nil, nil
	}
	if p, ok := s.modProposals[id]; ok {
		return p.Clone(), nil
	}
	key := fmt.Sprintf(KeyProposalBody, id)
	val, err := s.db.Get([]byte(key))
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	prop = new(types.Proposal)
	err = json.Unmarshal(val, prop)
	if err != nil {
		return nil, err
	}
	return
}

func (s *State) SetProposal(id uint64, prop *types.Proposal) error {
	s.modProposals[id] = prop.Clone()
	return nil
}

// VoteRecord errors with ErrNotFound for proposals that have no stored
// record; every submitted proposal gets one, so a miss is corruption.
func (s *State) VoteRecord(id uint64) (rec *types.VoteTally, err error) {
	if r, ok := s.modVotes[id]; ok {
		return r.Clone(), nil
	}
	key := fmt.Sprintf(KeyVoteRecord, id)
	val, err := s.db.Get([]byte(key))
	if err != nil {
		if err != leveldb.ErrNotFound {
			return nil, err
		}
	}
	if val == nil {
		return nil, ErrNotFound
	}
	rec = new(types.VoteTally)
	err = json.Unmarshal(val, rec)
	if err != nil {
		return nil, err
	}
	return
}

func (s *State) SetVoteRecord(id uint64, rec *types.VoteTally) error {
	s.modVotes[id] = rec.Clone()
	return nil
}

func (s *State) TokenAddress() string {
	return s.tokenAddr
}

func (s *State) SetTokenAddress(addr string) {
	s.tokenAddr = addr
	s.tokenDirty = true
}

func (s *State) GetAccount(idx uint64) (acnt *Account, err error) {
	if idx >= s.header.AccountIdx {
		err = ErrAccountNotFound
		return
	}
	acnt = s.acnts[idx]
	if acnt != nil {
		return
	}
	key := fmt.Sprintf(KeyAccountBody, idx)
	val, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if val == nil {
		err = ErrNotFound
		return
	}
	acnt = new(Account)
	err = json.Unmarshal(val, acnt)
	if err != nil {
		acnt = nil
	}
	s.acnts[idx] = acnt
	return
}

func (s *State) FindAccount(addr []byte) (acnt *Account, err error) {
	saddr := cmtcrypto.Address(addr).String()
	idx, ok := s.idxs[saddr]
	if !ok {
		key := fmt.Sprintf(KeyAccountIndex, saddr)
		val, err := s.db.Get([]byte(key))
		if err != nil {
			if err == leveldb.ErrNotFound {
				return nil, nil
			}
			return nil, err
		}
		if val == nil {
			return nil, nil
		}
		err = rlp.DecodeBytes(val, &idx)
		if err != nil {
			return nil, err
		}
		s.idxs[saddr] = idx
	}
	acnt, err = s.GetAccount(idx)

	return
}

// AccountByAddress makes State usable as an oracle AccountSource.
func (s *State) AccountByAddress(addr []byte) (*Account, error) {
	return s.FindAccount(addr)
}

func (s *State) ValidatorAccounts() (acounts []*Account, height uint64, err error) {
	vals := s.validators
	for _, val := range vals {
		pk := ed25519.PubKey(val.PubKey.GetEd25519()[:])
		addr := pk.Address()[:]
		act, _ := s.FindAccount(addr)
		if act != nil {
			acounts = append(acounts, act)
		}
	}
	height = s.header.Height
	return
}

func (s *State) Header() *StateHeader {
	return s.header
}

func (s *State) Hash() (h common.Hash) {
	if s.header.Hash != nil {
		copy(h[:], s.header.Hash)
	}
	return
}

func (s *State) SetChainId(chainId string) {
	s.header.ChainId = chainId
}

func (s *State) AddAccount(acnt *Account) (err error) {
	a, err := s.FindAccount(acnt.AddrBytes())
	if err != nil {
		return err
	}
	if a != nil {
		err = ErrAccountAlreadyExists
		return
	}
	acnt.Index = s.header.AccountIdx
	s.header.AccountIdx += 1
	s.acnts[acnt.Index] = acnt.Clone()
	s.modifiedAcnts[acnt.Index] = ModifiedFlagNew
	return
}

// Credit adds amount to the account at addr, creating a pubkey-less
// account when none exists yet.
func (s *State) Credit(addr []byte, amount uint64) (acnt *Account, err error) {
	acnt, err = s.FindAccount(addr)
	if err != nil {
		return nil, err
	}
	if acnt == nil {
		acnt = &Account{
			Addr:    append([]byte(nil), addr...),
			Balance: amount,
		}
		err = s.AddAccount(acnt)
		return
	}
	acnt.Balance += amount
	v := s.modifiedAcnts[acnt.Index]
	v |= ModifiedFlagMod
	s.modifiedAcnts[acnt.Index] = v
	s.acnts[acnt.Index] = acnt.Clone()
	return
}

// Transfer moves amount from the treasury to the beneficiary. The debit and
// credit land in the same block or not at all; Update only sees both.
func (s *State) Transfer(to common.Address, amount uint64) error {
	tre, err := s.FindAccount(TreasuryAddress.Bytes())
	if err != nil {
		return err
	}
	if tre == nil {
		return ErrTreasuryNotFound
	}
	if tre.Balance < amount {
		return ErrInsufficientTreasury
	}
	tre.Balance -= amount
	v := s.modifiedAcnts[tre.Index]
	v |= ModifiedFlagMod
	s.modifiedAcnts[tre.Index] = v
	s.acnts[tre.Index] = tre.Clone()
	_, err = s.Credit(to.Bytes(), amount)
	if err != nil {
		return err
	}
	s.logger.Debug("treasury transfer", "to", to, "amount", amount, "height", s.header.Height)
	return nil
}

// BumpNonce advances the sender nonce after a tx applies.
func (s *State) BumpNonce(idx uint64) error {
	a, err := s.GetAccount(idx)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrTxValidatorNotFound
	}
	a.Nonce += 1
	v := s.modifiedAcnts[a.Index]
	v |= ModifiedFlagMod
	s.modifiedAcnts[a.Index] = v
	s.acnts[a.Index] = a.Clone()
	return nil
}

func (s *State) Verify(gtx *tx.GovTx, allowNonceGap bool) (succ bool, err error) {
	a, err := s.GetAccount(gtx.Validator)
	if err != nil {
		return succ, err
	}
	if a == nil {
		err = ErrTxValidatorNotFound
		return
	}
	if !(a.Nonce == gtx.Nonce || (allowNonceGap && a.Nonce < gtx.Nonce)) {
		err = ErrTxNonceInvalid
		return
	}
	dat, err := gtx.SigData([]byte(s.header.ChainId))
	if err != nil {
		return succ, err
	}
	succ = a.Verify(dat, gtx.Sig)
	if !succ {
		err = ErrTxSigInvalid
	}
	return
}

func (s *State) Validators() (updateVals map[string]abci_types.ValidatorUpdate, err error) {
	updateVals = make(map[string]abci_types.ValidatorUpdate, 0)
	start := []byte(fmt.Sprintf(KeyAccountBody, ""))
	end := PrefixEndBytes(start)
	aIterator, err := s.db.Iterator(start, end, false)
	if err != nil {
		return nil, err
	}

	valsQueue := &PowerQueue{}
	heap.Init(valsQueue)
	for ; aIterator.Valid(); aIterator.Next() {
		var act Account
		valBytes := aIterator.Value()
		err = json.Unmarshal(valBytes, &act)
		if err != nil {
			return nil, err
		}
		if len(act.PubKey) == 0 {
			continue
		}
		power := config.PowerPerBalance(act.Balance, s.header.Height)
		if power > 0 {
			heap.Push(valsQueue, validatorWithPower{
				Index:  act.Index,
				Pubkey: act.PubKey,
				Power:  power,
			})
		}
	}

	vals := make([]abci_types.ValidatorUpdate, 0)
	for valsQueue.Len() > 0 && len(vals) < MaxValidators {
		val := heap.Pop(valsQueue).(validatorWithPower)
		vals = append(vals, abci_types.Ed25519ValidatorUpdate(val.Pubkey, val.Power))
	}
	s.validators = vals

	for _, val := range vals {
		updateVals[val.PubKey.String()] = val
	}

	return updateVals, nil
}

func (s *State) ValidatorsUpdate(curVals map[string]abci_types.ValidatorUpdate) (updateVals []abci_types.ValidatorUpdate, err error) {
	nextVals, err := s.Validators()
	if err != nil {
		return nil, err
	}

	for key, val := range nextVals {
		if v, ok := curVals[key]; ok {
			if v.Power != val.Power {
				updateVals = append(updateVals, val)
			}
		} else {
			updateVals = append(updateVals, val)
		}
	}

	for key, curVal := range curVals {
		if _, ok := nextVals[key]; !ok {
			curVal.Power = 0
			updateVals = append(updateVals, curVal)
		}
	}
	return
}

type validatorWithPower struct {
	Index  uint64
	Pubkey []byte
	Power  int64
}

type PowerQueue []validatorWithPower

func (pq PowerQueue) Len() int { return len(pq) }

func (pq PowerQueue) Less(i, j int) bool {
	if pq[i].Power == pq[j].Power {
		return pq[i].Index < pq[j].Index
	}
	return pq[i].Power > pq[j].Power
}

func (pq PowerQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *PowerQueue) Push(x any) {
	item := x.(validatorWithPower)
	*pq = append(*pq, item)
}

func (pq *PowerQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

func PrefixEndBytes(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)

	for {
		if end[len(end)-1] != byte(255) {
			end[len(end)-1]++
			break
		}

		end = end[:len(end)-1]

		if len(end) == 0 {
			end = nil
			break
		}
	}

	return end
}
