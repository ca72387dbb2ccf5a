package portal

// sqlite models

type Height struct {
	Id     uint64 `gorm:"primaryKey" json:"id"`
	Height uint64 `json:"height"`
}

// Proposal mirrors the on-chain record plus indexing metadata. Chain ids
// start at 0, so the row keeps its own autoincrement key and stores the
// chain id in the unique ProposalId column.
type Proposal struct {
	Id              uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ProposalId      uint64 `gorm:"unique_index" json:"proposal_id"`
	Proposer        uint64 `json:"proposer"`
	ProposerAddress string `json:"proposer_address"`
	Beneficiary     string `json:"beneficiary"`
	Amount          uint64 `json:"amount"`
	Title           string `json:"title"`
	VoteStart       uint64 `json:"vote_start"`
	VoteEnd         uint64 `json:"vote_end"`
	SubmitHeight    uint64 `json:"submit_height"`
	Executed        bool   `json:"executed"`
	ExecHeight      uint64 `json:"exec_height"`
	ForWeight       uint64 `json:"for_weight"`
	AgainstWeight   uint64 `json:"against_weight"`
	CreateTimestamp int64  `json:"create_timestamp"`
}

type Execution struct {
	Id            uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ProposalId    uint64 `json:"proposal_id"`
	Caller        uint64 `json:"caller"`
	Beneficiary   string `json:"beneficiary"`
	Amount        uint64 `json:"amount"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
	Height        uint64 `json:"height"`
}
