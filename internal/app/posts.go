package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	merrors "github.com/Aman-CERP/microblog/internal/errors"
	"github.com/Aman-CERP/microblog/internal/model"
	"github.com/Aman-CERP/microblog/internal/search"
	"github.com/Aman-CERP/microblog/internal/store"
)

// PostPage is one page of search results plus the pagination links.
type PostPage struct {
	Items    []*model.Post `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PerPage  int           `json:"per_page"`
	NextPage *int          `json:"next_page"`
	PrevPage *int          `json:"prev_page"`
}

// CreateUser stores a new user.
func (a *App) CreateUser(ctx context.Context, username, email, aboutMe string) (*model.User, error) {
	u := &model.User{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		AboutMe:  aboutMe,
		LastSeen: time.Now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return nil, merrors.ValidationError(err.Error(), nil)
	}

	s := a.DB.Session()
	s.Add(u)
	if err := s.Commit(ctx); err != nil {
		if isConstraint(err) {
			return nil, merrors.ValidationError("username or email is already taken", err)
		}
		return nil, merrors.StorageError("failed to create user", err)
	}
	return u, nil
}

// CreatePost stores a new post by userID. The post is indexed after the
// commit; indexing failures are logged and never fail the call.
func (a *App) CreatePost(ctx context.Context, userID int64, body, language string) (*model.Post, error) {
	if _, err := a.user(ctx, userID); err != nil {
		return nil, err
	}

	p := model.NewPost(userID, body)
	p.Language = language
	if err := p.Validate(); err != nil {
		return nil, merrors.ValidationError(err.Error(), nil)
	}

	s := a.DB.Session()
	s.Add(p)
	if err := s.Commit(ctx); err != nil {
		return nil, merrors.StorageError("failed to create post", err)
	}
	return p, nil
}

// UpdatePost replaces the body of post id.
func (a *App) UpdatePost(ctx context.Context, id int64, body string) (*model.Post, error) {
	p, err := a.Post(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Body = body
	if err := p.Validate(); err != nil {
		return nil, merrors.ValidationError(err.Error(), nil)
	}

	s := a.DB.Session()
	s.Add(p)
	if err := s.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("post", id, err)
		}
		return nil, merrors.StorageError("failed to update post", err)
	}
	return p, nil
}

// DeletePost removes post id.
func (a *App) DeletePost(ctx context.Context, id int64) error {
	p, err := a.Post(ctx, id)
	if err != nil {
		return err
	}

	s := a.DB.Session()
	s.Delete(p)
	if err := s.Commit(ctx); err != nil {
		return merrors.StorageError("failed to delete post", err)
	}
	return nil
}

// Post loads post id.
func (a *App) Post(ctx context.Context, id int64) (*model.Post, error) {
	p, err := a.Posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("post", id, err)
		}
		return nil, merrors.StorageError("failed to load post", err)
	}
	return p, nil
}

func (a *App) user(ctx context.Context, id int64) (*model.User, error) {
	u, err := a.Users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("user", id, err)
		}
		return nil, merrors.StorageError("failed to load user", err)
	}
	return u, nil
}

// SearchPosts returns one page of posts matching query, in relevance order.
// page below 1 means 1; perPage below 1 means the configured default and
// above search.MaxPerPage is rejected. NextPage is set while total, an
// upper bound, exceeds the rows seen so far.
func (a *App) SearchPosts(ctx context.Context, query string, page, perPage int) (*PostPage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, merrors.New(merrors.ErrCodeInvalidQuery, "query is empty", nil)
	}
	if perPage > search.MaxPerPage {
		return nil, merrors.ValidationError(
			fmt.Sprintf("per_page must be at most %d, got %d", search.MaxPerPage, perPage), nil).
			WithDetail("per_page", strconv.Itoa(perPage))
	}
	page, perPage = a.Bridge.Window(page, perPage)

	cur, total, err := search.Search(ctx, a.Bridge, a.Posts, query, page, perPage)
	if err != nil {
		return nil, err
	}
	items, err := cur.Collect()
	if err != nil {
		return nil, merrors.StorageError("failed to load search results", err)
	}

	out := &PostPage{Items: items, Total: total, Page: page, PerPage: perPage}
	if total > page*perPage {
		next := page + 1
		out.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		out.PrevPage = &prev
	}
	return out, nil
}

// Reindex rebuilds one searchable collection, or all when name is empty.
func (a *App) Reindex(ctx context.Context, name string) ([]search.ReindexStats, error) {
	if name == "" {
		return a.Registry.ReindexEach(ctx, a.Sync)
	}
	stats, err := a.Registry.Reindex(ctx, name, a.Sync)
	return []search.ReindexStats{stats}, err
}

func notFound(kind string, id int64, cause error) *merrors.Error {
	return merrors.New(merrors.ErrCodeNotFound, kind+" not found", cause).
		WithDetail("id", strconv.FormatInt(id, 10))
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
