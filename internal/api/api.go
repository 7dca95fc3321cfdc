// Package api is the HTTP admin surface of the document store daemon. It
// browses and edits raw documents and is not used by the CRM itself.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

type Handler struct {
	Store docstore.Store
}

// Register mounts the admin routes on rg.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.GET("/collections", h.GetCollections)
	rg.GET("/collections/:collection", h.QueryCollection)
	rg.GET("/collections/:collection/:id", h.GetDocument)
	rg.PUT("/collections/:collection/:id", h.Set)
	rg.DELETE("/collections/:collection/:id", h.Delete)
	rg.POST("/move", h.Move)
}

func (h *Handler) GetCollections(c *gin.Context) {
	names, err := h.Store.Collections(c.Request.Context())
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, names)
}

// QueryCollection reads a collection. Optional query parameters: order_by,
// direction (asc|desc), limit and field/value for a single equality filter.
func (h *Handler) QueryCollection(c *gin.Context) {
	q, err := queryFromParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.Store.Query(c.Request.Context(), c.Param("collection"), q)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) GetDocument(c *gin.Context) {
	data, err := h.Store.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) Set(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.Set(c.Request.Context(), c.Param("collection"), c.Param("id"), data); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.Store.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Move copies a document to another collection under the same id and
// deletes the original.
func (h *Handler) Move(c *gin.Context) {
	var input struct {
		SrcCollection string `json:"src_collection" binding:"required"`
		DstCollection string `json:"dst_collection" binding:"required"`
		ID            string `json:"id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	data, err := h.Store.Get(ctx, input.SrcCollection, input.ID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Set(ctx, input.DstCollection, input.ID, data); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Delete(ctx, input.SrcCollection, input.ID); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func queryFromParams(c *gin.Context) (docstore.Query, error) {
	q := docstore.Query{OrderBy: c.Query("order_by")}
	switch c.DefaultQuery("direction", "asc") {
	case "asc":
	case "desc":
		q.Direction = docstore.Desc
	default:
		return q, errors.New("direction must be asc or desc")
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	if field := c.Query("field"); field != "" {
		q.Where = []docstore.Filter{{Field: field, Op: docstore.OpEqual, Value: c.Query("value")}}
	}
	return q, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrMissingIndex):
		return http.StatusPreconditionFailed
	case errors.Is(err, docstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
