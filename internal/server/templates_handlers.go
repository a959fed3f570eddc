package server

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

type templateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type listTemplatesResponse struct {
	Templates []*models.Template `json:"templates"`
}

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// extractVariables returns the distinct placeholder names in order of first
// appearance.
func extractVariables(content string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range templateVarPattern.FindAllStringSubmatch(content, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "name is required")
		return
	}
	if req.Content == "" {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "content is required")
		return
	}

	now := time.Now()
	tmpl := &models.Template{
		TemplateID: uuid.Must(uuid.NewV7()),
		UserID:     identity.UserID,
		Name:       strings.TrimSpace(req.Name),
		Content:    req.Content,
		Variables:  extractVariables(req.Content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.stores.Templates.Create(r.Context(), tmpl); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "template.create", "template", tmpl.TemplateID.String())
	writeJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	templates, err := s.stores.Templates.List(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if templates == nil {
		templates = []*models.Template{}
	}
	writeJSON(w, http.StatusOK, listTemplatesResponse{Templates: templates})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := s.loadOwnedTemplate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	tmpl, ok := s.loadOwnedTemplate(w, r)
	if !ok {
		return
	}

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		tmpl.Name = strings.TrimSpace(req.Name)
	}
	if req.Content != "" {
		tmpl.Content = req.Content
		tmpl.Variables = extractVariables(req.Content)
	}
	tmpl.UpdatedAt = time.Now()

	if err := s.stores.Templates.Update(r.Context(), tmpl); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "template.update", "template", tmpl.TemplateID.String())
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	tmpl, ok := s.loadOwnedTemplate(w, r)
	if !ok {
		return
	}
	if err := s.stores.Templates.Delete(r.Context(), tmpl.TemplateID); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "template.delete", "template", tmpl.TemplateID.String())
	w.WriteHeader(http.StatusNoContent)
}

// loadOwnedTemplate fetches the template from the URL and enforces
// ownership, writing the error response itself on failure.
func (s *Server) loadOwnedTemplate(w http.ResponseWriter, r *http.Request) (*models.Template, bool) {
	identity := auth.IdentityFrom(r.Context())

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, store.ErrTemplateNotFound)
		return nil, false
	}
	tmpl, err := s.stores.Templates.Get(r.Context(), templateID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if tmpl.UserID != identity.UserID {
		// Do not reveal that another user's template exists.
		writeError(w, store.ErrTemplateNotFound)
		return nil, false
	}
	return tmpl, true
}
