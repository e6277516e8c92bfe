package rdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/rdioexport/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "rdioexport/1.0"

	// DefaultAPIURL is the web service endpoint every method is posted to
	DefaultAPIURL = "https://services.rdio.com/api/1/"
	// DefaultTokenURL is the OAuth 2.0 token endpoint
	DefaultTokenURL = "https://services.rdio.com/oauth2/token"

	defaultPageSize  = 100
	defaultBatchSize = 100
)

// Client implements domain.Source for the Rdio web service
type Client struct {
	apiURL     string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	pageSize   int
	batchSize  int
}

var _ domain.Source = (*Client)(nil)

// NewClient creates a new web service client
func NewClient(apiURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL: apiURL,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:    logger,
		pageSize:  defaultPageSize,
		batchSize: defaultBatchSize,
	}
}

// SetPageSize sets the count used for paged list methods
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

// SetBatchSize sets how many keys a single get call may carry
func (c *Client) SetBatchSize(n int) {
	if n > 0 {
		c.batchSize = n
	}
}

// call posts one web service method and returns its result payload
func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("method", method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("rdio request", "method", method)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("rdio request failed", "method", method, "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		return nil, domain.ErrAuthFailed
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("rdio request error", "method", method, "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Error("JSON parse error", "method", method, "error", err, "bodyLen", len(body))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Status != "ok" {
		return nil, &domain.APIError{Method: method, Message: env.Message}
	}
	return env.Result, nil
}

// FindUser resolves a user by email or vanity name. A missing user yields (nil, nil).
func (c *Client) FindUser(ctx context.Context, email, vanityName string) (*domain.User, error) {
	params := url.Values{}
	switch {
	case email != "":
		params.Set("email", email)
	case vanityName != "":
		params.Set("vanityName", vanityName)
	default:
		return nil, errors.New("findUser requires an email or a vanity name")
	}
	params.Set("extras", "vanityName,isProtected")

	result, err := c.call(ctx, "findUser", params)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "not found") {
			return nil, nil
		}
		return nil, err
	}
	if isNull(result) {
		return nil, nil
	}

	var u userDTO
	if err := json.Unmarshal(result, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	if u.Key == "" {
		return nil, nil
	}
	return MapUser(u), nil
}

// LoadUserPlaylists appends the keys of every playlist of kind to keys
func (c *Client) LoadUserPlaylists(ctx context.Context, kind domain.PlaylistKind, keys *domain.UserKeyStore) error {
	items, err := fetchAll(ctx, func(ctx context.Context, start, count int) ([]keyedDTO, error) {
		return c.list(ctx, "getUserPlaylists", url.Values{
			"user": {keys.UserKey()},
			"kind": {string(kind)},
		}, start, count)
	}, c.pageSize)
	if err != nil {
		return err
	}

	found := MapKeys(items)
	keys.AddPlaylistKeys(kind, found...)
	c.logger.Debug("loaded playlists", "kind", kind, "count", len(found))
	return nil
}

// LoadFavoritesAndSyncedKeys appends the user's favorites and synced keys
func (c *Client) LoadFavoritesAndSyncedKeys(ctx context.Context, keys *domain.UserKeyStore) error {
	favorites, err := fetchAll(ctx, func(ctx context.Context, start, count int) ([]keyedDTO, error) {
		return c.list(ctx, "getFavorites", url.Values{
			"user":  {keys.UserKey()},
			"types": {"tracksAndAlbums,artists,labels,stations"},
		}, start, count)
	}, c.pageSize)
	if err != nil {
		return err
	}
	keys.AddFavoritesKeys(MapKeys(favorites)...)

	synced, err := fetchAll(ctx, func(ctx context.Context, start, count int) ([]keyedDTO, error) {
		return c.list(ctx, "getSynced", url.Values{"user": {keys.UserKey()}}, start, count)
	}, c.pageSize)
	if err != nil {
		return err
	}
	keys.AddSyncedKeys(MapKeys(synced)...)

	c.logger.Debug("loaded favorites and synced keys", "favorites", len(favorites), "synced", len(synced))
	return nil
}

// LoadObjects fetches keys with get calls of at most batchSize keys, stores
// every returned object and then calls onObject for each. Keys the service
// does not return are skipped.
func (c *Client) LoadObjects(
	ctx context.Context,
	store domain.ObjectStore,
	keys []string,
	onObject func(*domain.Object),
) error {
	for start := 0; start < len(keys); start += c.batchSize {
		end := min(start+c.batchSize, len(keys))
		objs, err := c.get(ctx, keys[start:end])
		if err != nil {
			return err
		}
		if err := store.Put(objs...); err != nil {
			c.logger.Error("failed to store objects", "error", err, "count", len(objs))
			return fmt.Errorf("failed to store objects: %w", err)
		}
		if onObject != nil {
			for _, obj := range objs {
				onObject(obj)
			}
		}
	}
	return nil
}

// get fetches objects by key, returned in request order
func (c *Client) get(ctx context.Context, keys []string) ([]*domain.Object, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	result, err := c.call(ctx, "get", url.Values{"keys": {strings.Join(keys, ",")}})
	if err != nil {
		return nil, err
	}

	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(result, &byKey); err != nil {
		return nil, fmt.Errorf("failed to parse objects: %w", err)
	}

	objs := make([]*domain.Object, 0, len(byKey))
	for _, key := range keys {
		raw, ok := byKey[key]
		if !ok || isNull(raw) {
			c.logger.Warn("object not returned", "key", key)
			continue
		}
		obj, err := MapObject(key, raw)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// list calls a paged method that returns an array of objects
func (c *Client) list(ctx context.Context, method string, params url.Values, start, count int) ([]keyedDTO, error) {
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(count))

	result, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, nil
	}

	var items []keyedDTO
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return items, nil
}

// fetchAll is a generic pagination helper. Paged methods carry no total, so
// a short page ends the listing.
func fetchAll[T any](
	ctx context.Context,
	fetch func(ctx context.Context, start, count int) ([]T, error),
	pageSize int,
) ([]T, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var all []T
	start := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		items, err := fetch(ctx, start, pageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)

		if len(items) < pageSize {
			break
		}
		start += pageSize
	}

	return all, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
