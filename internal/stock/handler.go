package stock

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 1. Batch resource
	r.POST("/batches", h.RegisterBatch)
	r.GET("/batches", h.ListBatches)
	r.GET("/batches/:batch_id", h.GetBatch)
	r.DELETE("/batches/:batch_id", h.DeleteBatch)
	r.GET("/batches/:batch_id/items", h.ListItems)
	r.GET("/batches/:batch_id/counters", h.GetCounters)
	r.GET("/batches/:batch_id/transactions", h.ListTransactions)

	// 2. Issuance workflow
	r.POST("/issuances", h.IssueNext)
	r.GET("/issuances/:request_id", h.GetRequest)
	r.POST("/issuances/:request_id/receive", h.Receive)
	r.POST("/returns", h.Return)

	// 3. Direct item transitions (single unit, by id)
	r.GET("/items", h.ItemBySerial)
	r.POST("/items/:item_id/issue", h.IssueItem)
	r.POST("/items/:item_id/return", h.ReturnItem)
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var e errorDTO
	e.Error.Code = ErrCode(err)
	if de, ok := err.(*DomainError); ok {
		e.Error.Message = de.Message
	} else {
		e.Error.Message = "internal error"
	}
	return e
}

// ---------- handlers ----------

// POST /batches
func (h *Handler) RegisterBatch(c *gin.Context) {
	var req RegisterBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.RegisterBatch(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/batches/"+res.ParentID)
	c.JSON(http.StatusCreated, res)
}

// GET /batches?branch_id=&limit=&offset=&order=
func (h *Handler) ListBatches(c *gin.Context) {
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	items, total, err := h.svc.ListBatches(c.Request.Context(), c.Query("branch_id"), p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "limit": p.Limit, "offset": p.Offset})
}

func (h *Handler) GetBatch(c *gin.Context) {
	res, err := h.svc.GetBatch(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /batches/:batch_id
// Acting identity comes in the body; deletion is audited.
func (h *Handler) DeleteBatch(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing actor"))
		return
	}
	if err := h.svc.DeleteBatch(c.Request.Context(), c.Param("batch_id"), req.Actor); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListItems(c *gin.Context) {
	res, err := h.svc.ListItems(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res, "total": len(res)})
}

func (h *Handler) GetCounters(c *gin.Context) {
	res, err := h.svc.Counters(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	res, err := h.svc.ListTransactions(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res, "total": len(res)})
}

// POST /issuances
func (h *Handler) IssueNext(c *gin.Context) {
	var req IssueNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.IssueNext(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/issuances/"+res.RequestID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetRequest(c *gin.Context) {
	res, err := h.svc.GetRequest(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /issuances/:request_id/receive
func (h *Handler) Receive(c *gin.Context) {
	var req ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing received_by"))
		return
	}
	res, err := h.svc.Receive(c.Request.Context(), c.Param("request_id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /returns
func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Return(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /items?serial=
func (h *Handler) ItemBySerial(c *gin.Context) {
	sn := c.Query("serial")
	if sn == "" {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "serial query parameter is required"))
		return
	}
	res, err := h.svc.ItemBySerial(c.Request.Context(), sn)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /items/:item_id/issue
func (h *Handler) IssueItem(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing actor"))
		return
	}
	res, err := h.svc.IssueItem(c.Request.Context(), c.Param("item_id"), req.Actor)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /items/:item_id/return
func (h *Handler) ReturnItem(c *gin.Context) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing actor"))
		return
	}
	res, err := h.svc.ReturnItem(c.Request.Context(), c.Param("item_id"), req.Actor)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
