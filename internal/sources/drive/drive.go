// Package drive implements a source over the files of a shared Google Drive
// folder.
package drive

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"sbd-checker/internal/config"
	"sbd-checker/internal/sources"
)

// createdTimeLayout matches createdTime values such as
// 2021-01-02T00:00:00.000Z. Fractional seconds are accepted when parsing even
// though the layout omits them. The trailing Z is matched literally and the
// result is UTC.
//
// TODO: confirm against live responses that createdTime is always reported
// with a Z suffix before switching to time.RFC3339Nano.
const createdTimeLayout = "2006-01-02T15:04:05Z"

type Source struct {
	svc      FileService
	folderID string
	query    string
	pageSize int64
}

// New creates a folder source backed by the Drive v3 API.
func New(ctx context.Context, cfg config.DriveConfig, opts ...option.ClientOption) (*Source, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return NewWithService(NewFileService(svc), cfg), nil
}

// NewWithService creates a folder source over an existing FileService.
func NewWithService(svc FileService, cfg config.DriveConfig) *Source {
	return &Source{
		svc:      svc,
		folderID: cfg.FolderID,
		query:    buildQuery(cfg.FolderID, cfg.Query),
		pageSize: cfg.PageSize,
	}
}

func (s *Source) Name() string {
	return "drive"
}

// Query returns the files.list filter used by the source.
func (s *Source) Query() string {
	return s.query
}

// queryEscaper escapes a string literal of the files.list query language.
var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func buildQuery(folderID, extra string) string {
	q := fmt.Sprintf("'%s' in parents", queryEscaper.Replace(folderID))
	if extra == "" {
		return q
	}
	return fmt.Sprintf("(%s) and (%s)", q, extra)
}

func (s *Source) Iterate(ctx context.Context) iter.Seq2[sources.Item, error] {
	return func(yield func(sources.Item, error) bool) {
		pageToken := ""
		for page := 1; ; page++ {
			resp, err := s.svc.List(ctx, ListRequest{
				Query:     s.query,
				OrderBy:   "createdTime desc",
				PageToken: pageToken,
				PageSize:  s.pageSize,
			})
			if err != nil {
				yield(sources.Item{}, fmt.Errorf("failed to list folder %s: %w", s.folderID, err))
				return
			}

			log.Debug().
				Str("folder", s.folderID).
				Int("page", page).
				Int("files", len(resp.Files)).
				Msg("Listed drive page")

			for _, f := range resp.Files {
				created, err := time.Parse(createdTimeLayout, f.CreatedTime)
				if err != nil {
					yield(sources.Item{}, fmt.Errorf("file %s has invalid createdTime %q: %w", f.Id, f.CreatedTime, err))
					return
				}

				item := sources.Item{
					Name:    f.Name,
					Time:    created,
					Content: sources.NewLazyContent(ctx, s.downloader(f.Id)),
				}
				if !yield(item, nil) {
					return
				}
			}

			if resp.NextPageToken == "" {
				return
			}
			pageToken = resp.NextPageToken
		}
	}
}

func (s *Source) downloader(fileID string) sources.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		return s.svc.Download(ctx, fileID)
	}
}
