package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

type articleRequest struct {
	NovelID string `json:"novelId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type listArticlesResponse struct {
	Articles []*models.Article `json:"articles"`
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req articleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.NovelID) == "" {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "novelId is required")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "title is required")
		return
	}

	now := time.Now()
	article := &models.Article{
		ArticleID: uuid.Must(uuid.NewV7()),
		UserID:    identity.UserID,
		NovelID:   strings.TrimSpace(req.NovelID),
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stores.Articles.Create(r.Context(), article); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "article.create", "article", article.ArticleID.String())
	writeJSON(w, http.StatusCreated, article)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	novelID := r.URL.Query().Get("novelId")
	articles, err := s.stores.Articles.List(r.Context(), identity.UserID, novelID)
	if err != nil {
		writeError(w, err)
		return
	}
	if articles == nil {
		articles = []*models.Article{}
	}
	writeJSON(w, http.StatusOK, listArticlesResponse{Articles: articles})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := s.loadOwnedArticle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	article, ok := s.loadOwnedArticle(w, r)
	if !ok {
		return
	}

	var req articleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Title) != "" {
		article.Title = strings.TrimSpace(req.Title)
	}
	if req.Content != "" {
		article.Content = req.Content
	}
	article.UpdatedAt = time.Now()

	if err := s.stores.Articles.Update(r.Context(), article); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "article.update", "article", article.ArticleID.String())
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	article, ok := s.loadOwnedArticle(w, r)
	if !ok {
		return
	}
	if err := s.stores.Articles.Delete(r.Context(), article.ArticleID); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "article.delete", "article", article.ArticleID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadOwnedArticle(w http.ResponseWriter, r *http.Request) (*models.Article, bool) {
	identity := auth.IdentityFrom(r.Context())

	articleID, err := uuid.Parse(chi.URLParam(r, "articleID"))
	if err != nil {
		writeError(w, store.ErrArticleNotFound)
		return nil, false
	}
	article, err := s.stores.Articles.Get(r.Context(), articleID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if article.UserID != identity.UserID {
		writeError(w, store.ErrArticleNotFound)
		return nil, false
	}
	return article, true
}
