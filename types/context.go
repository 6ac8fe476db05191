package types

import (
	"context"
	"time"

	"github.com/calehh/authchain/store"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Module identities. Funds held by the protocol sit in Custody; Treasury
// receives protocol revenue and forfeits.
var (
	CustodyAddress      = ModuleAddress("custody")
	TreasuryAddress     = ModuleAddress("treasury")
	VerificationAddress = ModuleAddress("verification")
	ArbitrationAddress  = ModuleAddress("arbitration")
)

func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("module/" + name))[12:])
}

type Header struct {
	ChainID string
	Height  uint64
	Time    time.Time
}

// Context carries one transaction's view of the chain: its store branch, the
// block header and the authenticated sender. Events emitted by any component
// during the transaction are collected here.
type Context struct {
	context.Context

	kv     store.KVStore
	header Header
	sender common.Address
	logger cmtlog.Logger
	events *[]abci.Event
}

func NewContext(ctx context.Context, kv store.KVStore, header Header, logger cmtlog.Logger) *Context {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Context{
		Context: ctx,
		kv:      kv,
		header:  header,
		logger:  logger,
		events:  new([]abci.Event),
	}
}

func (c *Context) WithSender(sender common.Address) *Context {
	n := *c
	n.sender = sender
	return &n
}

func (c *Context) KVStore() store.KVStore { return c.kv }
func (c *Context) Sender() common.Address { return c.sender }
func (c *Context) Height() uint64         { return c.header.Height }
func (c *Context) ChainID() string        { return c.header.ChainID }
func (c *Context) Logger() cmtlog.Logger  { return c.logger }

// Now is the block time in unix seconds.
func (c *Context) Now() int64 { return c.header.Time.Unix() }

func (c *Context) EmitEvent(ev abci.Event) {
	*c.events = append(*c.events, ev)
}

func (c *Context) Events() []abci.Event {
	return *c.events
}
