// Package meta serves the static review-page assets. Templates are fetched
// through the abstract file system so they can live on local disk, in memory
// or behind any other afs-supported scheme.
package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/rotorstar/hitl-protocol/service/review"
)

// Service resolves per-type review page templates below a base URL.
type Service struct {
	fs       afs.Service
	baseURL  string
	fsOption []storage.Option
}

// New creates a template service rooted at baseURL.
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	return &Service{fs: fs, baseURL: baseURL, fsOption: options}
}

// Template returns the raw HTML template for the review type. Extension
// types reuse the file named after their bare tag.
func (s *Service) Template(ctx context.Context, t review.Type) ([]byte, error) {
	location := url.Join(s.baseURL, TemplateName(t))
	exists, err := s.fs.Exists(ctx, location, s.fsOption...)
	if err != nil {
		return nil, fmt.Errorf("failed to check template %s: %w", location, err)
	}
	if !exists {
		return nil, fmt.Errorf("template not found: %s", location)
	}
	data, err := s.fs.DownloadWithURL(ctx, location, s.fsOption...)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", location, err)
	}
	return data, nil
}

// TemplateName maps a review type to its template file.
func TemplateName(t review.Type) string {
	name := strings.TrimPrefix(string(t), review.ExtensionPrefix)
	return name + ".html"
}
