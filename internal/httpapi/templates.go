package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	docrender "github.com/alnah/go-docrender"
)

type createTemplateRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

type updateTemplateRequest struct {
	Name        *string `json:"name"`
	Content     *string `json:"content"`
	Description *string `json:"description"`
}

type templateResponse struct {
	*docrender.Template
	Content *string `json:"content,omitempty"`
}

func (s *Server) handleCreateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	tmpl, err := s.templates.Create(c.Request.Context(), s.ownerOf(c), docrender.TemplateInput{
		Name:        req.Name,
		Description: req.Description,
		Source:      req.Content,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, templateResponse{Template: tmpl})
}

func (s *Server) handleListTemplates(c *gin.Context) {
	list, err := s.templates.List(c.Request.Context(), s.ownerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	tmpl, src, err := s.templates.Load(c.Request.Context(), s.ownerOf(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, templateResponse{Template: tmpl, Content: &src})
}

func (s *Server) handleUpdateTemplate(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	var req updateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	tmpl, err := s.templates.Update(c.Request.Context(), s.ownerOf(c), id, docrender.TemplateUpdate{
		Name:        req.Name,
		Description: req.Description,
		Source:      req.Content,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, templateResponse{Template: tmpl})
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	id, ok := s.templateID(c)
	if !ok {
		return
	}
	if err := s.templates.Delete(c.Request.Context(), s.ownerOf(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

// templateID parses the :id parameter, answering 400 when malformed.
func (s *Server) templateID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "invalid template id: "+c.Param("id"))
		return uuid.Nil, false
	}
	return id, true
}
