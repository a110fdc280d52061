package services

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	tokenFilePrefix = "token-"
	tokenFileSuffix = ".json"
)

// cachedToken is the on-disk record for one account identity.
type cachedToken struct {
	Identity string        `json:"identity"`
	SavedAt  time.Time     `json:"saved_at"`
	Token    *oauth2.Token `json:"token"`
}

// TokenCache persists one OAuth token per account identity under a directory.
//
// Every operation holds the cache mutex, so a refresh written for one identity
// can never interleave with a reauthorization written for another.
type TokenCache struct {
	mu  sync.Mutex
	dir string
}

// NewTokenCache creates a [TokenCache] rooted at dir.
func NewTokenCache(dir string) *TokenCache {
	return &TokenCache{dir: dir}
}

// Dir returns the cache directory.
func (c *TokenCache) Dir() string { return c.dir }

func (c *TokenCache) path(identity string) (string, error) {
	if identity == "" {
		return "", errors.Wrap(shared.ErrMissingArgument, "account identity")
	}
	return filepath.Join(c.dir, tokenFilePrefix+url.PathEscape(identity)+tokenFileSuffix), nil
}

// Load returns the cached token for identity, or nil when none is stored.
func (c *TokenCache) Load(identity string) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.path(identity)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read token cache")
	}

	var record cachedToken
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "failed to parse token cache")
	}
	if record.Identity != identity || record.Token == nil {
		return nil, nil
	}
	return record.Token, nil
}

// Save writes token for identity atomically with owner-only permissions.
func (c *TokenCache) Save(identity string, token *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.path(identity)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create token cache directory")
	}

	data, err := json.MarshalIndent(cachedToken{Identity: identity, SavedAt: time.Now().UTC(), Token: token}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal token")
	}

	tmp, err := os.CreateTemp(c.dir, ".token-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp token file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write token file")
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to restrict token file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write token file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), p), "failed to replace token file")
}

// Delete removes the record for identity. A missing record is not an error.
func (c *TokenCache) Delete(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.path(identity)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete token file")
	}
	return nil
}

// Identities lists the identities that have a cached record, sorted.
func (c *TokenCache) Identities() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read token cache directory")
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, tokenFilePrefix) || !strings.HasSuffix(name, tokenFileSuffix) {
			continue
		}
		escaped := strings.TrimSuffix(strings.TrimPrefix(name, tokenFilePrefix), tokenFileSuffix)
		if id, err := url.PathUnescape(escaped); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
