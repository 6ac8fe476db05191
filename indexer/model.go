package indexer

// sqlite models

type Height struct {
	Id     uint64 `gorm:"primary_key" json:"id"`
	Height uint64 `json:"height"`
}

// AuditEvent is one protocol event exactly as the chain emitted it.
type AuditEvent struct {
	Id         uint64 `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Height     uint64 `gorm:"index" json:"height"`
	TxIndex    int    `json:"tx_index"`
	Type       string `gorm:"index" json:"type"`
	Attributes string `json:"attributes"`
}

func (AuditEvent) TableName() string { return "audit_events" }

type Request struct {
	Id             string `gorm:"primary_key" json:"id"`
	Product        string `gorm:"index" json:"product"`
	Requester      string `gorm:"index" json:"requester"`
	Verifier       string `gorm:"index" json:"verifier"`
	ProductValue   uint64 `json:"product_value"`
	Fee            uint64 `json:"fee"`
	Status         string `gorm:"index" json:"status"`
	Result         bool   `json:"result"`
	EvidenceURI    string `json:"evidence_uri"`
	Slashed        uint64 `json:"slashed"`
	RequestHeight  uint64 `json:"request_height"`
	CompleteHeight uint64 `json:"complete_height"`
}

type Dispute struct {
	Id           uint64 `gorm:"primary_key" json:"id"`
	Request      string `gorm:"index" json:"request"`
	Product      string `json:"product"`
	Initiator    string `gorm:"index" json:"initiator"`
	Status       string `gorm:"index" json:"status"`
	InFavor      bool   `json:"in_favor"`
	VotesFor     uint64 `json:"votes_for"`
	VotesAgainst uint64 `json:"votes_against"`
	Deadline     int64  `json:"deadline"`
	CreateHeight uint64 `json:"create_height"`
	CloseHeight  uint64 `json:"close_height"`
}

type Retailer struct {
	Address      string `gorm:"primary_key" json:"address"`
	Name         string `json:"name"`
	Score        uint64 `gorm:"index" json:"score"`
	Updates      uint64 `json:"updates"`
	Skipped      uint64 `json:"skipped"`
	LastReason   string `json:"last_reason"`
	UpdateHeight uint64 `json:"update_height"`
}
