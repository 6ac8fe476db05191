package indexer

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

const maxPageSize = 100

type Service struct {
	engine     *gin.Engine
	indexer    *ChainIndexer
	listenAddr string
}

func NewService(listenAddr string, indexer *ChainIndexer) *Service {
	r := gin.New()
	r.Use(gin.Recovery())
	s := &Service{
		engine:     r,
		indexer:    indexer,
		listenAddr: listenAddr,
	}
	s.engine.GET("/requests", s.handleGetRequests)
	s.engine.GET("/requests/:id", s.handleGetRequest)
	s.engine.GET("/disputes", s.handleGetDisputes)
	s.engine.GET("/disputes/:id", s.handleGetDispute)
	s.engine.GET("/retailers", s.handleGetRetailers)
	s.engine.GET("/retailers/:address", s.handleGetRetailer)
	s.engine.GET("/events", s.handleGetEvents)
	return s
}

func (s *Service) Handler() http.Handler {
	return s.engine
}

func (s *Service) Start() error {
	return s.engine.Run(s.listenAddr)
}

type PageReq struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

func (p PageReq) apply(db *gorm.DB) *gorm.DB {
	size := p.PageSize
	if size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	page := p.Page
	if page < 0 {
		page = 0
	}
	return db.Offset(page * size).Limit(size)
}

type GetRequestsReq struct {
	PageReq
	Status    string `form:"status"`
	Requester string `form:"requester"`
	Verifier  string `form:"verifier"`
	Product   string `form:"product"`
}

type GetRequestsResponse struct {
	Requests []Request `json:"requests"`
	Total    uint64    `json:"total"`
}

func (s *Service) handleGetRequests(c *gin.Context) {
	var req GetRequestsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := s.indexer.db.Model(&Request{})
	for col, v := range map[string]string{"status": req.Status, "requester": req.Requester, "verifier": req.Verifier, "product": req.Product} {
		if v != "" {
			q = q.Where(col+" = ?", v)
		}
	}
	var response GetRequestsResponse
	if err := q.Count(&response.Total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Requests = make([]Request, 0)
	if err := req.apply(q.Order("request_height desc")).Find(&response.Requests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) getOne(c *gin.Context, out any, where string, arg any) {
	err := s.indexer.db.Where(where, arg).First(out).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, out)
	}
}

func (s *Service) handleGetRequest(c *gin.Context) {
	s.getOne(c, &Request{}, "id = ?", c.Param("id"))
}

type GetDisputesReq struct {
	PageReq
	Status  string `form:"status"`
	Request string `form:"request"`
}

type GetDisputesResponse struct {
	Disputes []Dispute `json:"disputes"`
	Total    uint64    `json:"total"`
}

func (s *Service) handleGetDisputes(c *gin.Context) {
	var req GetDisputesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := s.indexer.db.Model(&Dispute{})
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	if req.Request != "" {
		q = q.Where("request = ?", req.Request)
	}
	var response GetDisputesResponse
	if err := q.Count(&response.Total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Disputes = make([]Dispute, 0)
	if err := req.apply(q.Order("id desc")).Find(&response.Disputes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) handleGetDispute(c *gin.Context) {
	s.getOne(c, &Dispute{}, "id = ?", c.Param("id"))
}

type GetRetailersResponse struct {
	Retailers []Retailer `json:"retailers"`
	Total     uint64     `json:"total"`
}

// handleGetRetailers lists retailers by score, best first.
func (s *Service) handleGetRetailers(c *gin.Context) {
	var req PageReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var response GetRetailersResponse
	if err := s.indexer.db.Model(&Retailer{}).Count(&response.Total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Retailers = make([]Retailer, 0)
	if err := req.apply(s.indexer.db.Order("score desc")).Find(&response.Retailers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) handleGetRetailer(c *gin.Context) {
	s.getOne(c, &Retailer{}, "address = ?", c.Param("address"))
}

type GetEventsReq struct {
	PageReq
	Type   string `form:"type"`
	Height uint64 `form:"height"`
}

type GetEventsResponse struct {
	Events []AuditEvent `json:"events"`
	Total  uint64       `json:"total"`
}

func (s *Service) handleGetEvents(c *gin.Context) {
	var req GetEventsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := s.indexer.db.Model(&AuditEvent{})
	if req.Type != "" {
		q = q.Where("type = ?", req.Type)
	}
	if req.Height != 0 {
		q = q.Where("height = ?", req.Height)
	}
	var response GetEventsResponse
	if err := q.Count(&response.Total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Events = make([]AuditEvent, 0)
	if err := req.apply(q.Order("id asc")).Find(&response.Events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, response)
}
