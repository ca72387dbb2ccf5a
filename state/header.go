package state

// StateHeader is the chain-level scalar record stored under KeyState.
// RootHash and Hash are recomputed from the tree on every Update/save.
type StateHeader struct {
	ChainId    string `json:"chain_id"`
	Height     uint64 `json:"height"`
	AccountIdx uint64 `json:"account_idx"`
	RootHash   []byte `json:"root_hash,omitempty"`
	Hash       []byte `json:"hash,omitempty"`
}

func (h *StateHeader) Clone() *StateHeader {
	n := *h
	n.RootHash = append([]byte(nil), h.RootHash...)
	n.Hash = append([]byte(nil), h.Hash...)
	return &n
}
