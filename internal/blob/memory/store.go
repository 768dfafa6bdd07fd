// Package memory is a blob store for local runs and tests. Its URLs are
// HMAC-signed and served by the gateway itself.
package memory

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"downloadgate/internal/blob"
	"downloadgate/pkg/platform/sentinel"
)

var (
	ErrSignatureInvalid = errors.New("invalid download signature")
	ErrLinkExpired      = errors.New("download link has expired")
)

type object struct {
	info blob.ObjectInfo
	data []byte
}

// Store keeps objects in memory.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
	secret  []byte
	baseURL string
	now     func() time.Time
}

var _ blob.Store = (*Store)(nil)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store whose URLs start with baseURL and are signed with
// secret.
func New(secret, baseURL string, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	s := &Store{
		objects: make(map[string]*object),
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores data under key and records its digest.
func (s *Store) Put(key string, data []byte) {
	sum := sha256.Sum256(data)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &object{
		info: blob.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: s.now(),
			ContentType:  contentType,
			SHA256:       hex.EncodeToString(sum[:]),
		},
		data: data,
	}
}

// LoadDir puts every regular file under dir, keyed by its slash-separated
// relative path.
func (s *Store) LoadDir(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		s.Put(filepath.ToSlash(rel), data)
		n++
		return nil
	})
	return n, err
}

func (s *Store) List(_ context.Context) ([]blob.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]blob.ObjectInfo, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Head(_ context.Context, key string) (*blob.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	info := o.info
	return &info, nil
}

// PresignGet returns <baseURL>/<key>?exp=&fn=&sig=.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("fn", filename)
	q.Set("sig", s.sign(key, exp, filename))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, escapeKey(key), q.Encode()), nil
}

// Open checks a signed request and returns the object.
func (s *Store) Open(key string, query url.Values) (*blob.ObjectInfo, []byte, error) {
	exp, err := strconv.ParseInt(query.Get("exp"), 10, 64)
	if err != nil {
		return nil, nil, ErrSignatureInvalid
	}
	expected := s.sign(key, exp, query.Get("fn"))
	if !hmac.Equal([]byte(expected), []byte(query.Get("sig"))) {
		return nil, nil, ErrSignatureInvalid
	}
	if s.now().Unix() > exp {
		return nil, nil, ErrLinkExpired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, nil, sentinel.ErrNotFound
	}
	info := o.info
	return &info, o.data, nil
}

func (s *Store) sign(key string, exp int64, filename string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join([]string{key, strconv.FormatInt(exp, 10), filename}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
