// Package portal indexes governance events into sqlite and serves them
// over HTTP. It trails the chain through the CometBFT RPC and never holds
// authoritative state: live values (tally, treasury) are proxied through
// ABCI queries.
package portal

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calehh/agora-app/state"
	"github.com/calehh/agora-app/types"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	comethttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

type ChainIndexer struct {
	logger        cmtlog.Logger
	Url           string
	Height        int64
	db            *gorm.DB
	cli           *comethttp.HTTP
	eventHandlers map[string]eventHandler
}

func NewChainIndexer(logger cmtlog.Logger, dbPath string, chainUrl string) (*ChainIndexer, error) {
	logger.Info("NewChainIndexer", "dbPath", dbPath, "url", chainUrl)
	cli, err := comethttp.New(chainUrl, "/websocket")
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Height{}, &Proposal{}, &Execution{}).Error; err != nil {
		return nil, err
	}
	h := Height{Id: 1}
	if err = db.First(&h).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := ChainIndexer{
		logger:        logger.With("module", "indexer"),
		Url:           chainUrl,
		Height:        int64(h.Height + 1),
		db:            db,
		cli:           cli,
		eventHandlers: map[string]eventHandler{},
	}

	c.eventHandlers = map[string]eventHandler{
		types.EventProposalType:  c.handleEventProposal,
		types.EventExecutionType: c.handleEventExecution,
	}
	return &c, nil
}

type eventHandler func(ctx context.Context, event abci.Event, height int64)

func (c *ChainIndexer) handleEvent(ctx context.Context, event abci.Event, height int64) {
	if h, ok := c.eventHandlers[event.Type]; ok {
		h(ctx, event, height)
	}
}

func (c *ChainIndexer) handleEventProposal(ctx context.Context, event abci.Event, height int64) {
	ev := types.DecodeEventProposal(event)
	if ev == nil {
		c.logger.Error("decode event fail", "event", event)
		return
	}
	// Save is an insert when the row is new and an update on replay.
	row := Proposal{}
	if err := c.db.Where("proposal_id = ?", ev.Proposal).First(&row).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.logger.Error("get proposal fail", "err", err)
		return
	}
	row.ProposalId = ev.Proposal
	row.Proposer = ev.Proposer
	row.ProposerAddress = ev.ProposerAddress
	row.Beneficiary = ev.Beneficiary
	row.Amount = ev.Amount
	row.Title = ev.Title
	row.VoteStart = ev.VoteStart
	row.VoteEnd = ev.VoteEnd
	row.SubmitHeight = uint64(height)
	if row.CreateTimestamp == 0 {
		row.CreateTimestamp = time.Now().Unix()
	}
	if err := c.db.Save(&row).Error; err != nil {
		c.logger.Error("save proposal fail", "err", err)
	}
}

func (c *ChainIndexer) handleEventExecution(ctx context.Context, event abci.Event, height int64) {
	ev := types.DecodeEventExecution(event)
	if ev == nil {
		c.logger.Error("decode event fail", "event", event)
		return
	}
	exec := Execution{
		ProposalId:    ev.Proposal,
		Caller:        ev.Caller,
		Beneficiary:   ev.Beneficiary,
		Amount:        ev.Amount,
		ForWeight:     ev.ForWeight,
		AgainstWeight: ev.AgainstWeight,
		Height:        uint64(height),
	}
	if err := c.db.Create(&exec).Error; err != nil {
		c.logger.Error("save execution fail", "err", err)
	}

	row := Proposal{}
	if err := c.db.Where("proposal_id = ?", ev.Proposal).First(&row).Error; err != nil {
		c.logger.Error("get proposal fail", "err", err)
		return
	}
	row.Executed = true
	row.ExecHeight = uint64(height)
	row.ForWeight = ev.ForWeight
	row.AgainstWeight = ev.AgainstWeight
	if err := c.db.Save(&row).Error; err != nil {
		c.logger.Error("save proposal fail", "err", err)
	}
}

func (c *ChainIndexer) Start(ctx context.Context) {
	var err error
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.cli == nil {
				c.cli, err = comethttp.New(c.Url, "/websocket")
				if err != nil {
					c.logger.Error("connect fail", "err", err)
					continue
				}
			}
			b, err := c.cli.Status(context.TODO())
			if err != nil {
				c.logger.Error("get status fail", "err", err)
				if !c.cli.IsRunning() {
					c.cli.Stop()
					c.cli, err = comethttp.New(c.Url, "/websocket")
					if err != nil {
						c.logger.Error("reconnect fail", "err", err)
					}
				}
				continue
			}
			for b.SyncInfo.LatestBlockHeight > c.Height {
				time.Sleep(time.Millisecond * 100)
				c.logger.Info("indexer syncing", "height", c.Height)
				events, err := c.cli.BlockResults(ctx, &c.Height)
				if err != nil {
					c.logger.Error("get block results fail", "err", err)
					if !c.cli.IsRunning() {
						c.cli.Stop()
						c.cli, err = comethttp.New(c.Url, "/websocket")
						if err != nil {
							c.logger.Error("reconnect fail", "err", err)
						}
					}
					break
				}
				for _, res := range events.TxsResults {
					for _, event := range res.Events {
						c.handleEvent(ctx, event, c.Height)
					}
				}
				if err := c.db.Save(&Height{
					Id:     1,
					Height: uint64(c.Height),
				}).Error; err != nil {
					c.logger.Error("save height fail", "err", err)
					break
				}
				c.Height++
			}
		}
	}
}

func (c *ChainIndexer) getProposals(page int, pageSize int) ([]Proposal, uint64, error) {
	var proposals []Proposal
	err := c.db.Order("proposal_id desc").Offset(page * pageSize).Limit(pageSize).Find(&proposals).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = c.db.Model(&Proposal{}).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

func (c *ChainIndexer) getProposalByProposalId(proposalId uint64) (Proposal, error) {
	var proposal Proposal
	err := c.db.Where("proposal_id = ?", proposalId).First(&proposal).Error
	if err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

func (c *ChainIndexer) getProposalsByProposer(proposerAddr string, page int, pageSize int) ([]Proposal, uint64, error) {
	var proposals []Proposal
	err := c.db.Where("proposer_address = ?", proposerAddr).Order("proposal_id desc").Offset(page * pageSize).Limit(pageSize).Find(&proposals).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = c.db.Model(&Proposal{}).Where("proposer_address = ?", proposerAddr).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

func (c *ChainIndexer) getProposalsByBeneficiary(beneficiary string, page int, pageSize int) ([]Proposal, uint64, error) {
	var proposals []Proposal
	err := c.db.Where("beneficiary = ?", beneficiary).Order("proposal_id desc").Offset(page * pageSize).Limit(pageSize).Find(&proposals).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = c.db.Model(&Proposal{}).Where("beneficiary = ?", beneficiary).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

func (c *ChainIndexer) getProposalsByExecuted(executed bool, page int, pageSize int) ([]Proposal, uint64, error) {
	var proposals []Proposal
	err := c.db.Where("executed = ?", executed).Order("proposal_id desc").Offset(page * pageSize).Limit(pageSize).Find(&proposals).Error
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	err = c.db.Model(&Proposal{}).Where("executed = ?", executed).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

func (c *ChainIndexer) getExecutionsByProposal(proposalId uint64) ([]Execution, error) {
	var execs []Execution
	err := c.db.Where("proposal_id = ?", proposalId).Order("id desc").Find(&execs).Error
	if err != nil {
		return nil, err
	}
	return execs, nil
}

// QueryTally asks the node for the live tally of a proposal. The result is
// sampled from current oracle balances, not from indexed rows.
func (c *ChainIndexer) QueryTally(ctx context.Context, proposalId uint64) (*types.VoteTally, error) {
	s := fmt.Sprintf("0%x", proposalId)
	if len(s)&1 == 1 {
		s = s[1:]
	}
	dat, _ := hex.DecodeString(s)
	res, err := c.cli.ABCIQuery(ctx, "/tally/", dat)
	if err != nil {
		c.logger.Error("ABCIQuery fail", "err", err)
		if !c.cli.IsRunning() {
			c.cli.Stop()
			c.cli, err = comethttp.New(c.Url, "/websocket")
			if err != nil {
				c.logger.Error("reconnect fail", "err", err)
			}
		}
		return nil, err
	}
	if res.Response.Code != 0 {
		return nil, errors.New(res.Response.Log)
	}
	var tally types.VoteTally
	if err := json.Unmarshal(res.Response.Value, &tally); err != nil {
		return nil, err
	}
	return &tally, nil
}

func (c *ChainIndexer) queryTreasury(ctx context.Context) (*state.Account, error) {
	res, err := c.cli.ABCIQuery(ctx, "/accounts/", state.TreasuryAddress.Bytes())
	if err != nil {
		c.logger.Error("ABCIQuery fail", "err", err)
		if !c.cli.IsRunning() {
			c.cli.Stop()
			c.cli, err = comethttp.New(c.Url, "/websocket")
			if err != nil {
				c.logger.Error("reconnect fail", "err", err)
			}
		}
		return nil, err
	}
	if res.Response.Code != 0 {
		return nil, errors.New(res.Response.Log)
	}
	var act state.Account
	if err := json.Unmarshal(res.Response.Value, &act); err != nil {
		return nil, err
	}
	return &act, nil
}
