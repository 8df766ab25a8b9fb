package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	docrender "github.com/alnah/go-docrender"
)

type renderRequest struct {
	Data json.RawMessage `json:"data"`
}

type renderImagesRequest struct {
	Data json.RawMessage         `json:"data"`
	DPI  int                     `json:"dpi"`
	Page *docrender.PageSettings `json:"page"`
}

type convertRequest struct {
	URL string `json:"url" binding:"required"`
	DPI int    `json:"dpi"`
}

type imagesResponse struct {
	Success    bool     `json:"success"`
	SourceURL  string   `json:"source_url,omitempty"`
	TemplateID string   `json:"template_id,omitempty"`
	TotalPages int      `json:"total_pages"`
	Images     []string `json:"images"`
}

func (s *Server) handleRender(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	data, err := docrender.ParseData(req.Data)
	if err != nil {
		s.fail(c, err)
		return
	}

	pdf, err := s.renderer.RenderToDocument(c.Request.Context(), id, data, s.ownerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=rendered_"+id.String()+".pdf")
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) handleRenderImages(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	var req renderImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	data, err := docrender.ParseData(req.Data)
	if err != nil {
		s.fail(c, err)
		return
	}

	batch, err := s.renderer.RenderToImages(c.Request.Context(), docrender.ImageRequest{
		TemplateID: uuid.NullUUID{UUID: id, Valid: true},
		Data:       data,
		DPI:        req.DPI,
		Page:       req.Page,
		OwnerID:    s.ownerOf(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, imagesResponse{
		Success:    true,
		TemplateID: id.String(),
		TotalPages: len(batch.Filenames),
		Images:     s.imageURLs(c, batch.Filenames),
	})
}

func (s *Server) handleConvertURL(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	batch, err := s.renderer.RenderToImages(c.Request.Context(), docrender.ImageRequest{
		URL:     req.URL,
		DPI:     req.DPI,
		OwnerID: s.ownerOf(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, imagesResponse{
		Success:    true,
		SourceURL:  req.URL,
		TotalPages: len(batch.Filenames),
		Images:     s.imageURLs(c, batch.Filenames),
	})
}

func (s *Server) handleGetImage(c *gin.Context) {
	name := c.Param("filename")
	if !strings.HasSuffix(name, ".png") {
		s.badRequest(c, "invalid image format")
		return
	}

	art, err := s.renderer.FetchArtifact(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+art.Name+`"`)
	c.Header("Last-Modified", art.ModTime.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, art.MediaType, art.Data)
}

func (s *Server) handleOwnerLogs(c *gin.Context) {
	limit, ok := s.limit(c)
	if !ok {
		return
	}
	logs, err := s.logs.ListByOwner(c.Request.Context(), s.ownerOf(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleTemplateLogs(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	limit, ok := s.limit(c)
	if !ok {
		return
	}
	logs, err := s.logs.ListByTemplate(c.Request.Context(), id, s.ownerOf(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// limit parses the optional ?limit= query; stores clamp the value.
func (s *Server) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return docrender.DefaultLogLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// imageURLs returns absolute download URLs for filenames.
func (s *Server) imageURLs(c *gin.Context, filenames []string) []string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if p := c.GetHeader("X-Forwarded-Proto"); p == "http" || p == "https" {
			scheme = p
		}
		base = scheme + "://" + c.Request.Host
	}

	urls := make([]string, len(filenames))
	for i, name := range filenames {
		urls[i] = base + "/api/images/" + name
	}
	return urls
}
