package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/startupvista/vista-go/pkg/session"
)

const (
	readCacheSize = 128
	readCacheTTL  = 30 * time.Second
)

// Post is a funding post on the marketplace.
type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Sector         string    `json:"sector"`
	FundingGoal    float64   `json:"fundingGoal"`
	InvestmentType string    `json:"investmentType"`
	AuthorID       string    `json:"authorId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreatePostRequest is the payload for creating a funding post.
type CreatePostRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Sector         string  `json:"sector"`
	FundingGoal    float64 `json:"fundingGoal"`
	InvestmentType string  `json:"investmentType"`
}

// Startup is a startup directory entry.
type Startup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Sector      string `json:"sector"`
	Description string `json:"description"`
	IsVerified  bool   `json:"isVerified"`
}

// Profile is the role-specific profile document for the current user. Its
// shape varies by role, so it stays schemaless on the client.
type Profile map[string]interface{}

// readCache is a small TTL'd LRU shared by the read-side marketplace calls.
type readCache struct {
	cache *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	value   interface{}
	fetched time.Time
}

func newReadCache() *readCache {
	// lru.New only fails for a non-positive size.
	c, _ := lru.New[string, cacheEntry](readCacheSize)
	return &readCache{cache: c}
}

func (rc *readCache) get(key string) (interface{}, bool) {
	entry, ok := rc.cache.Get(key)
	if !ok || time.Since(entry.fetched) > readCacheTTL {
		return nil, false
	}
	return entry.value, true
}

func (rc *readCache) put(key string, value interface{}) {
	rc.cache.Add(key, cacheEntry{value: value, fetched: time.Now()})
}

func (rc *readCache) purge() {
	rc.cache.Purge()
}

// PostsClient covers the /posts endpoints.
type PostsClient struct {
	c     *Client
	cache *readCache
}

func newPostsClient(c *Client) *PostsClient {
	return &PostsClient{c: c, cache: newReadCache()}
}

// Posts returns the posts sub-client.
func (c *Client) Posts() *PostsClient { return c.posts }

// List fetches all funding posts, optionally filtered by sector.
func (p *PostsClient) List(ctx context.Context, sector string) ([]Post, error) {
	key := "posts:" + sector
	if cached, ok := p.cache.get(key); ok {
		return cached.([]Post), nil
	}

	path := "/posts"
	if sector != "" {
		path += "?sector=" + url.QueryEscape(sector)
	}
	var out []Post
	if err := p.c.do(ctx, p.c.authed, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	p.cache.put(key, out)
	return out, nil
}

// Get fetches a single post by ID.
func (p *PostsClient) Get(ctx context.Context, id string) (*Post, error) {
	if id == "" {
		return nil, fmt.Errorf("post ID is required")
	}
	key := "post:" + id
	if cached, ok := p.cache.get(key); ok {
		post := cached.(Post)
		return &post, nil
	}

	var out Post
	if err := p.c.do(ctx, p.c.authed, http.MethodGet, "/posts/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, err
	}
	p.cache.put(key, out)
	return &out, nil
}

// Create publishes a new funding post and invalidates cached reads.
func (p *PostsClient) Create(ctx context.Context, req CreatePostRequest) (*Post, error) {
	var out Post
	if err := p.c.do(ctx, p.c.authed, http.MethodPost, "/posts", req, &out, nil); err != nil {
		return nil, err
	}
	p.cache.purge()
	return &out, nil
}

// ExpressInterest records an investor's interest in a post with their
// answers to the author's screening questions.
func (p *PostsClient) ExpressInterest(ctx context.Context, postID string, answers []string) error {
	if postID == "" {
		return fmt.Errorf("post ID is required")
	}
	body := map[string][]string{"answers": answers}
	return p.c.do(ctx, p.c.authed, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/interest", body, nil, nil)
}

// StartupsClient covers the /startups endpoints.
type StartupsClient struct {
	c     *Client
	cache *readCache
}

func newStartupsClient(c *Client) *StartupsClient {
	return &StartupsClient{c: c, cache: newReadCache()}
}

// Startups returns the startups sub-client.
func (c *Client) Startups() *StartupsClient { return c.startups }

// List fetches the startup directory.
func (s *StartupsClient) List(ctx context.Context) ([]Startup, error) {
	if cached, ok := s.cache.get("startups"); ok {
		return cached.([]Startup), nil
	}
	var out []Startup
	if err := s.c.do(ctx, s.c.authed, http.MethodGet, "/startups", nil, &out, nil); err != nil {
		return nil, err
	}
	s.cache.put("startups", out)
	return out, nil
}

// Get fetches a single startup by ID.
func (s *StartupsClient) Get(ctx context.Context, id string) (*Startup, error) {
	if id == "" {
		return nil, fmt.Errorf("startup ID is required")
	}
	var out Startup
	if err := s.c.do(ctx, s.c.authed, http.MethodGet, "/startups/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProfileClient covers the /users/profile endpoints.
type ProfileClient struct {
	c *Client
}

func newProfileClient(c *Client) *ProfileClient {
	return &ProfileClient{c: c}
}

// Profile returns the profile sub-client.
func (c *Client) Profile() *ProfileClient { return c.profile }

// Get fetches the current user's role-specific profile.
func (p *ProfileClient) Get(ctx context.Context) (Profile, error) {
	var out Profile
	if err := p.c.do(ctx, p.c.authed, http.MethodGet, "/users/profile", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the role-keyed section of the current user's profile.
func (p *ProfileClient) Update(ctx context.Context, role session.Role, data map[string]interface{}) (Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	body := map[string]interface{}{string(role): data}
	var out Profile
	if err := p.c.do(ctx, p.c.authed, http.MethodPut, "/users/profile", body, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}
