// Package api exposes the CRM data core over a thin REST surface.
// Handlers stay free of business rules: they translate HTTP to store,
// sync and import operations.
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"sheetcrm/adapters/excel"
	"sheetcrm/app"
	"sheetcrm/domain/table"
	"sheetcrm/internal/errors"
)

// Server wires the HTTP routes to the data core.
type Server struct {
	store    *excel.Store
	sync     *app.SyncService
	importer *app.ImportService
}

// NewServer creates the HTTP surface over the given services.
func NewServer(store *excel.Store, sync *app.SyncService, importer *app.ImportService) *Server {
	return &Server{store: store, sync: sync, importer: importer}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/tables", s.handleListTables)
		api.GET("/tables/:key", s.handleGetTable)
		api.PUT("/tables/:key", s.handlePutTable)
		api.POST("/sync", s.handleSync)
		api.GET("/sync/status", s.handleSyncStatus)
		api.POST("/import", s.handleImport)
	}
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"document": s.store.Status(),
	})
}

func (s *Server) handleListTables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": table.AllKeys()})
}

func (s *Server) handleGetTable(c *gin.Context) {
	key, ok := table.KeyFromString(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(errors.NotFound("table")))
		return
	}

	collection, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": key, "rows": collection[key]})
}

func (s *Server) handlePutTable(c *gin.Context) {
	key, ok := table.KeyFromString(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(errors.NotFound("table")))
		return
	}

	var rows table.Table
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.InvalidInput("request body must be a JSON array of rows")))
		return
	}
	for _, row := range rows {
		table.NormalizeRowID(row)
	}

	err := s.store.Update(func(current table.Collection) (table.Collection, error) {
		current[key] = rows
		return current, nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": key, "rows": len(rows)})
}

func (s *Server) handleSync(c *gin.Context) {
	result := s.sync.SyncNow(c.Request.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.sync.Status())
}

func (s *Server) handleImport(c *gin.Context) {
	mode, err := app.ParseMergeMode(c.DefaultPostForm("mode", string(app.ModeAppend)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(errors.InvalidInput("multipart field 'file' is required")))
		return
	}

	tmpDir, err := os.MkdirTemp("", "crm-import-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	defer os.RemoveAll(tmpDir)

	uploadPath := filepath.Join(tmpDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, uploadPath); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}

	outcome, err := s.importer.Import(c.Request.Context(), uploadPath, mode)
	if err != nil {
		log.Errorf("[API] import failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func errorBody(err error) gin.H {
	return gin.H{
		"success": false,
		"code":    errors.GetCode(err),
		"message": err.Error(),
	}
}
