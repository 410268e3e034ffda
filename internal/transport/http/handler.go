package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r *gin.Engine, svc *service.OrderService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/orders", placeOrderHandler(svc))
		v1.GET("/orders/:id", getOrderHandler(svc))
		v1.GET("/orders/:id/state", getStateHandler(svc))
		v1.POST("/orders/:id/transitions", transitionHandler(svc))
	}
}

type placeOrderReq struct {
	CustomerID   uint64 `json:"customer_id" binding:"required"`
	RestaurantID uint64 `json:"restaurant_id" binding:"required"`
	Total        string `json:"total" binding:"required"`
}

func placeOrderHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		total, err := decimal.NewFromString(req.Total)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total"})
			return
		}
		o, err := svc.PlaceOrder(c, req.CustomerID, req.RestaurantID, total)
		if err != nil {
			if errors.Is(err, service.ErrInvalidOrder) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

type transitionReq struct {
	Action          string `json:"action" binding:"required"`
	ExpectedVersion uint64 `json:"expected_version" binding:"required"`
}

func transitionHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		o, err := svc.ApplyTransition(c, id, req.ExpectedVersion, lifecycle.Action(req.Action))
		if err != nil {
			switch {
			case errors.Is(err, lifecycle.ErrInvalidTransition):
				// Business rejection: the caller must not retry.
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			case errors.Is(err, repo.ErrVersionConflict):
				// The caller re-reads and retries with the current version.
				cur, _ := svc.GetOrder(c, id)
				resp := gin.H{"error": "version conflict"}
				if cur != nil {
					resp["current_version"] = cur.Version
				}
				c.JSON(http.StatusConflict, resp)
			case errors.Is(err, repo.ErrOrderNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func getOrderHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		o, err := svc.GetOrder(c, id)
		if err != nil {
			if errors.Is(err, repo.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func getStateHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		state, version, err := svc.GetOrderState(c, id)
		if err != nil {
			if errors.Is(err, repo.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": id, "state": state, "version": version})
	}
}
