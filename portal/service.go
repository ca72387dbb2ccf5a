package portal

import (
	"net/http"

	"github.com/calehh/agora-app/state"
	"github.com/gin-gonic/gin"
)

type Service struct {
	engine     *gin.Engine
	indexer    *ChainIndexer
	listenAddr string
}

func NewService(listenAddr string, indexer *ChainIndexer) *Service {
	r := gin.Default()
	s := &Service{
		engine:     r,
		indexer:    indexer,
		listenAddr: listenAddr,
	}
	s.engine.POST("/getProposals", s.handleGetProposals)
	s.engine.POST("/getTally", s.handleGetTally)
	s.engine.POST("/getTreasury", s.handleGetTreasury)
	return s
}

func (s *Service) Start() {
	s.engine.Run(s.listenAddr)
}

type ProposalInfo struct {
	Proposal   Proposal    `json:"proposal"`
	Executions []Execution `json:"executions"`
}

type GetProposalsReq struct {
	ProposalId  *uint64 `json:"proposalId"`
	Proposer    string  `json:"proposer"`
	Beneficiary string  `json:"beneficiary"`
	Executed    *bool   `json:"executed"`
	Page        int     `json:"page"`
	PageSize    int     `json:"pageSize"`
}

type GetProposalResponse struct {
	Proposals []ProposalInfo `json:"proposals"`
	Total     uint64         `json:"total"`
}

func (s *Service) handleGetProposals(c *gin.Context) {
	var response GetProposalResponse
	response.Proposals = make([]ProposalInfo, 0)
	var err error
	var requestData GetProposalsReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if requestData.ProposalId != nil {
		proposalInfo, err := s.getProposalInfo(*requestData.ProposalId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		response.Proposals = append(response.Proposals, proposalInfo)
		response.Total = 1
		c.JSON(http.StatusOK, response)
		return
	}

	proposalTotal := uint64(0)
	proposals := make([]Proposal, 0)
	switch {
	case requestData.Proposer != "":
		proposals, proposalTotal, err = s.indexer.getProposalsByProposer(requestData.Proposer, requestData.Page, requestData.PageSize)
	case requestData.Beneficiary != "":
		proposals, proposalTotal, err = s.indexer.getProposalsByBeneficiary(requestData.Beneficiary, requestData.Page, requestData.PageSize)
	case requestData.Executed != nil:
		proposals, proposalTotal, err = s.indexer.getProposalsByExecuted(*requestData.Executed, requestData.Page, requestData.PageSize)
	default:
		proposals, proposalTotal, err = s.indexer.getProposals(requestData.Page, requestData.PageSize)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response.Total = proposalTotal
	for _, proposal := range proposals {
		proposalInfo, err := s.getProposalInfo(proposal.ProposalId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		response.Proposals = append(response.Proposals, proposalInfo)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) getProposalInfo(proposalId uint64) (ProposalInfo, error) {
	proposal, err := s.indexer.getProposalByProposalId(proposalId)
	if err != nil {
		return ProposalInfo{}, err
	}
	execs, err := s.indexer.getExecutionsByProposal(proposalId)
	if err != nil {
		return ProposalInfo{}, err
	}
	proposalInfo := ProposalInfo{
		Proposal:   proposal,
		Executions: execs,
	}
	return proposalInfo, nil
}

type GetTallyReq struct {
	ProposalId *uint64 `json:"proposalId"`
}

type GetTallyResponse struct {
	ProposalId    uint64 `json:"proposal_id"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
	Accepted      bool   `json:"accepted"`
}

func (s *Service) handleGetTally(c *gin.Context) {
	var requestData GetTallyReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if requestData.ProposalId == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalId is required"})
		return
	}
	tally, err := s.indexer.QueryTally(c.Request.Context(), *requestData.ProposalId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetTallyResponse{
		ProposalId:    *requestData.ProposalId,
		ForWeight:     tally.ForWeight,
		AgainstWeight: tally.AgainstWeight,
		Accepted:      tally.Accepted(),
	})
}

type GetTreasuryResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

func (s *Service) handleGetTreasury(c *gin.Context) {
	act, err := s.indexer.queryTreasury(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetTreasuryResponse{
		Address: state.TreasuryAddress.Hex(),
		Balance: act.Balance,
	})
}
