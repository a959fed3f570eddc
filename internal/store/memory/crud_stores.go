package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// TemplateStore implements store.TemplateStore in memory.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*models.Template
}

var _ store.TemplateStore = (*TemplateStore)(nil)

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[uuid.UUID]*models.Template)}
}

func (s *TemplateStore) Create(ctx context.Context, tmpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tmpl
	s.templates[cp.TemplateID] = &cp
	return nil
}

func (s *TemplateStore) Get(ctx context.Context, templateID uuid.UUID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[templateID]
	if !ok {
		return nil, store.ErrTemplateNotFound
	}
	cp := *tmpl
	return &cp, nil
}

func (s *TemplateStore) List(ctx context.Context, userID uuid.UUID) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var templates []*models.Template
	for _, tmpl := range s.templates {
		if tmpl.UserID == userID {
			cp := *tmpl
			templates = append(templates, &cp)
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].UpdatedAt.After(templates[j].UpdatedAt)
	})
	return templates, nil
}

func (s *TemplateStore) Update(ctx context.Context, tmpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[tmpl.TemplateID]
	if !ok {
		return store.ErrTemplateNotFound
	}
	existing.Name = tmpl.Name
	existing.Content = tmpl.Content
	existing.Variables = tmpl.Variables
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *TemplateStore) Delete(ctx context.Context, templateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[templateID]; !ok {
		return store.ErrTemplateNotFound
	}
	delete(s.templates, templateID)
	return nil
}

// ArticleStore implements store.ArticleStore in memory.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[uuid.UUID]*models.Article
}

var _ store.ArticleStore = (*ArticleStore)(nil)

func NewArticleStore() *ArticleStore {
	return &ArticleStore{articles: make(map[uuid.UUID]*models.Article)}
}

func (s *ArticleStore) Create(ctx context.Context, article *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *article
	s.articles[cp.ArticleID] = &cp
	return nil
}

func (s *ArticleStore) Get(ctx context.Context, articleID uuid.UUID) (*models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[articleID]
	if !ok {
		return nil, store.ErrArticleNotFound
	}
	cp := *article
	return &cp, nil
}

func (s *ArticleStore) List(ctx context.Context, userID uuid.UUID, novelID string) ([]*models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var articles []*models.Article
	for _, article := range s.articles {
		if article.UserID != userID {
			continue
		}
		if novelID != "" && article.NovelID != novelID {
			continue
		}
		cp := *article
		articles = append(articles, &cp)
	}
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].UpdatedAt.After(articles[j].UpdatedAt)
	})
	return articles, nil
}

func (s *ArticleStore) Update(ctx context.Context, article *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.articles[article.ArticleID]
	if !ok {
		return store.ErrArticleNotFound
	}
	existing.Title = article.Title
	existing.Content = article.Content
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *ArticleStore) Delete(ctx context.Context, articleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[articleID]; !ok {
		return store.ErrArticleNotFound
	}
	delete(s.articles, articleID)
	return nil
}

// HookStore implements store.HookStore in memory.
type HookStore struct {
	mu    sync.RWMutex
	hooks map[uuid.UUID]*models.Hook
}

var _ store.HookStore = (*HookStore)(nil)

func NewHookStore() *HookStore {
	return &HookStore{hooks: make(map[uuid.UUID]*models.Hook)}
}

func (s *HookStore) Create(ctx context.Context, hook *models.Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *hook
	s.hooks[cp.HookID] = &cp
	return nil
}

func (s *HookStore) Get(ctx context.Context, hookID uuid.UUID) (*models.Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hook, ok := s.hooks[hookID]
	if !ok {
		return nil, store.ErrHookNotFound
	}
	cp := *hook
	return &cp, nil
}

func (s *HookStore) List(ctx context.Context, userID uuid.UUID) ([]*models.Hook, error) {
	return s.list(func(h *models.Hook) bool { return h.UserID == userID })
}

func (s *HookStore) ListEnabled(ctx context.Context, userID uuid.UUID, event string) ([]*models.Hook, error) {
	return s.list(func(h *models.Hook) bool {
		return h.UserID == userID && h.Event == event && h.Enabled
	})
}

func (s *HookStore) list(match func(*models.Hook) bool) ([]*models.Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hooks []*models.Hook
	for _, hook := range s.hooks {
		if match(hook) {
			cp := *hook
			hooks = append(hooks, &cp)
		}
	}
	sort.Slice(hooks, func(i, j int) bool {
		return hooks[i].CreatedAt.After(hooks[j].CreatedAt)
	})
	return hooks, nil
}

func (s *HookStore) Update(ctx context.Context, hook *models.Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.hooks[hook.HookID]
	if !ok {
		return store.ErrHookNotFound
	}
	existing.Event = hook.Event
	existing.TargetURL = hook.TargetURL
	existing.Secret = hook.Secret
	existing.Enabled = hook.Enabled
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *HookStore) Delete(ctx context.Context, hookID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[hookID]; !ok {
		return store.ErrHookNotFound
	}
	delete(s.hooks, hookID)
	return nil
}

// AuditStore implements store.AuditStore in memory.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*models.AuditEntry
}

var _ store.AuditStore = (*AuditStore)(nil)

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []*models.AuditEntry
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(entries) < limit); i-- {
		cp := *s.entries[i]
		entries = append(entries, &cp)
	}
	return entries, nil
}
