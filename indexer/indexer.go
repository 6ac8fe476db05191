package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/calehh/authchain/arbitration"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	comethttp "github.com/cometbft/cometbft/rpc/client/http"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// BlockSource is the part of the cometbft RPC client the indexer reads from.
type BlockSource interface {
	Status(ctx context.Context) (*ctypes.ResultStatus, error)
	BlockResults(ctx context.Context, height *int64) (*ctypes.ResultBlockResults, error)
}

type ChainIndexer struct {
	logger        cmtlog.Logger
	Url           string
	Height        int64
	db            *gorm.DB
	cli           BlockSource
	eventHandlers map[string]eventHandler
}

func OpenDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.DB().SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Height{}, &AuditEvent{}, &Request{}, &Dispute{}, &Retailer{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewChainIndexer(logger cmtlog.Logger, dbPath string, chainUrl string) (*ChainIndexer, error) {
	logger.Info("NewChainIndexer", "dbPath", dbPath, "url", chainUrl)
	cli, err := comethttp.New(chainUrl, "/websocket")
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	c, err := NewChainIndexerWithSource(logger, db, cli)
	if err != nil {
		return nil, err
	}
	c.Url = chainUrl
	return c, nil
}

// NewChainIndexerWithSource resumes from the last height recorded in db.
func NewChainIndexerWithSource(logger cmtlog.Logger, db *gorm.DB, cli BlockSource) (*ChainIndexer, error) {
	h := Height{Id: 1}
	if err := db.First(&h).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	c := &ChainIndexer{
		logger: logger.With("module", "indexer"),
		Height: int64(h.Height + 1),
		db:     db,
		cli:    cli,
	}
	c.eventHandlers = map[string]eventHandler{
		types.EventVerificationRequestedType: c.handleEventRequested,
		types.EventVerifierAssignedType:      c.handleEventAssigned,
		types.EventVerificationCompletedType: c.handleEventCompleted,
		types.EventVerifierSlashedType:       c.handleEventSlashed,
		types.EventRetailerRegisteredType:    c.handleEventRetailerRegistered,
		types.EventReputationUpdatedType:     c.handleEventReputation,
		types.EventReputationSkippedType:     c.handleEventReputation,
		types.EventDisputeCreatedType:        c.handleEventDisputeCreated,
		types.EventDisputeVotedType:          c.handleEventDisputeVoted,
		types.EventDisputeResolvedType:       c.handleEventDisputeResolved,
	}
	return c, nil
}

func (c *ChainIndexer) Close() error {
	return c.db.Close()
}

type eventHandler func(tx *gorm.DB, event abci.Event, height int64) error

func (c *ChainIndexer) handleEvent(tx *gorm.DB, event abci.Event, height int64, txIndex int) error {
	attrs, err := json.Marshal(types.Attributes(event))
	if err != nil {
		return err
	}
	audit := AuditEvent{Height: uint64(height), TxIndex: txIndex, Type: event.Type, Attributes: string(attrs)}
	if err := tx.Create(&audit).Error; err != nil {
		return err
	}
	if h, ok := c.eventHandlers[event.Type]; ok {
		return h(tx, event, height)
	}
	return nil
}

var errUndecodable = errors.New("undecodable event")

func (c *ChainIndexer) handleEventRequested(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventVerificationRequested(event)
	if ev == nil {
		return errUndecodable
	}
	return tx.Save(&Request{
		Id:            ev.Request.Hex(),
		Product:       ev.Product.Hex(),
		Requester:     ev.Requester.Hex(),
		ProductValue:  ev.ProductValue,
		Fee:           ev.Fee,
		Status:        string(verification.StatusRequested),
		RequestHeight: uint64(height),
	}).Error
}

// updateRequest applies fn to a stored request. Events for requests created
// before the indexer's first block are ignored.
func updateRequest(tx *gorm.DB, id string, fn func(r *Request)) error {
	var r Request
	if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	fn(&r)
	return tx.Save(&r).Error
}

func (c *ChainIndexer) handleEventAssigned(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventVerifierAssigned(event)
	if ev == nil {
		return errUndecodable
	}
	return updateRequest(tx, ev.Request.Hex(), func(r *Request) {
		r.Verifier = ev.Verifier.Hex()
		r.Status = string(verification.StatusAssigned)
	})
}

func (c *ChainIndexer) handleEventCompleted(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventVerificationCompleted(event)
	if ev == nil {
		return errUndecodable
	}
	return updateRequest(tx, ev.Request.Hex(), func(r *Request) {
		r.Status = string(verification.StatusCompleted)
		r.Result = ev.Result
		r.EvidenceURI = ev.EvidenceURI
		r.CompleteHeight = uint64(height)
	})
}

func (c *ChainIndexer) handleEventSlashed(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventVerifierSlashed(event)
	if ev == nil {
		return errUndecodable
	}
	return updateRequest(tx, ev.Request.Hex(), func(r *Request) {
		r.Status = string(verification.StatusTimedOut)
		r.Slashed = ev.Amount
		r.CompleteHeight = uint64(height)
	})
}

func (c *ChainIndexer) handleEventRetailerRegistered(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventRetailerRegistered(event)
	if ev == nil {
		return errUndecodable
	}
	return tx.Save(&Retailer{
		Address:      ev.Retailer.Hex(),
		Name:         ev.Name,
		Score:        500,
		UpdateHeight: uint64(height),
	}).Error
}

func (c *ChainIndexer) handleEventReputation(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventReputation(event)
	if ev == nil {
		return errUndecodable
	}
	r := Retailer{Address: ev.Retailer.Hex()}
	if err := tx.Where("address = ?", r.Address).First(&r).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if event.Type == types.EventReputationSkippedType {
		r.Skipped++
	} else {
		r.Updates++
		r.Score = ev.Score
	}
	r.LastReason = ev.Reason
	r.UpdateHeight = uint64(height)
	return tx.Save(&r).Error
}

func (c *ChainIndexer) handleEventDisputeCreated(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventDisputeCreated(event)
	if ev == nil {
		return errUndecodable
	}
	return tx.Save(&Dispute{
		Id:           ev.Dispute,
		Request:      ev.Request.Hex(),
		Product:      ev.Product.Hex(),
		Initiator:    ev.Initiator.Hex(),
		Status:       string(arbitration.StatusOpen),
		Deadline:     ev.Deadline,
		CreateHeight: uint64(height),
	}).Error
}

func updateDispute(tx *gorm.DB, id uint64, fn func(d *Dispute)) error {
	var d Dispute
	if err := tx.Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	fn(&d)
	return tx.Save(&d).Error
}

func (c *ChainIndexer) handleEventDisputeVoted(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventDisputeVoted(event)
	if ev == nil {
		return errUndecodable
	}
	return updateDispute(tx, ev.Dispute, func(d *Dispute) {
		d.VotesFor = ev.VotesFor
		d.VotesAgainst = ev.VotesAgainst
		if d.Status == string(arbitration.StatusOpen) {
			d.Status = string(arbitration.StatusUnderReview)
		}
	})
}

func (c *ChainIndexer) handleEventDisputeResolved(tx *gorm.DB, event abci.Event, height int64) error {
	ev := types.DecodeEventDisputeResolved(event)
	if ev == nil {
		return errUndecodable
	}
	return updateDispute(tx, ev.Dispute, func(d *Dispute) {
		d.Status = ev.Status
		d.InFavor = ev.InFavor
		d.CloseHeight = uint64(height)
	})
}

// indexBlock stores one block's events and advances the recorded height in a
// single sqlite transaction.
func (c *ChainIndexer) indexBlock(ctx context.Context, height int64) error {
	res, err := c.cli.BlockResults(ctx, &height)
	if err != nil {
		return err
	}
	tx := c.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for i, r := range res.TxsResults {
		if r.Code != 0 {
			continue
		}
		for _, event := range r.Events {
			if err := c.handleEvent(tx, event, height, i); err != nil {
				tx.Rollback()
				c.logger.Error("index event fail", "height", height, "type", event.Type, "err", err)
				return err
			}
		}
	}
	if err := tx.Save(&Height{Id: 1, Height: uint64(height)}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// Sync indexes every block up to the node's latest height.
func (c *ChainIndexer) Sync(ctx context.Context) error {
	st, err := c.cli.Status(ctx)
	if err != nil {
		return err
	}
	for st.SyncInfo.LatestBlockHeight >= c.Height {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.indexBlock(ctx, c.Height); err != nil {
			return err
		}
		c.Height++
	}
	return nil
}

func (c *ChainIndexer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil {
				c.logger.Error("indexer sync fail", "height", c.Height, "err", err)
			}
		}
	}
}
