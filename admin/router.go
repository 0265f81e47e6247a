// Package admin exposes the live option store over HTTP.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sampletrader/options"
)

type setOptionRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

type optionResponse struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NewRouter builds the admin routes.
func NewRouter(store *options.Store, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/options", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Snapshot())
	})

	r.GET("/options/:name", func(c *gin.Context) {
		name := c.Param("name")
		v, ok := store.Get(options.Name(name))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid option: " + name})
			return
		}
		c.JSON(http.StatusOK, optionResponse{Name: name, Value: v})
	})

	r.PUT("/options/:name", func(c *gin.Context) {
		name := c.Param("name")
		var req setOptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.Set(options.Name(name), *req.Value); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, options.ErrInvalidOption) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		logger.Info("option updated over http", zap.String("name", name), zap.Float64("value", *req.Value))
		c.JSON(http.StatusOK, optionResponse{Name: name, Value: *req.Value})
	})

	return r
}

// Serve runs the admin server until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
