// Package gmail implements a source over the attachments of messages in a
// Gmail mailbox.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"sbd-checker/internal/config"
	"sbd-checker/internal/sources"
)

const (
	DefaultMaxMessages = 1000
	defaultUserID      = "me"
)

type Source struct {
	svc         MessageService
	userID      string
	query       string
	labelIDs    []string
	maxMessages int
}

// New creates a mailbox source backed by the Gmail v1 API.
func New(ctx context.Context, cfg config.GmailConfig, opts ...option.ClientOption) (*Source, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewWithService(NewMessageService(svc), cfg), nil
}

// NewWithService creates a mailbox source over an existing MessageService.
func NewWithService(svc MessageService, cfg config.GmailConfig) *Source {
	s := &Source{
		svc:         svc,
		userID:      cfg.UserID,
		query:       cfg.Query,
		labelIDs:    cfg.Labels,
		maxMessages: cfg.MaxMessages,
	}
	if s.userID == "" {
		s.userID = defaultUserID
	}
	if s.maxMessages <= 0 {
		s.maxMessages = DefaultMaxMessages
	}
	return s
}

func (s *Source) Name() string {
	return "gmail"
}

// Iterate yields one item per attachment, newest message first. The message
// bound is checked after each full page, so the last page may take the scan
// past MaxMessages.
func (s *Source) Iterate(ctx context.Context) iter.Seq2[sources.Item, error] {
	return func(yield func(sources.Item, error) bool) {
		pageToken := ""
		scanned := 0

		for {
			resp, err := s.svc.List(ctx, ListRequest{
				UserID:    s.userID,
				Query:     s.query,
				LabelIDs:  s.labelIDs,
				PageToken: pageToken,
			})
			if err != nil {
				yield(sources.Item{}, fmt.Errorf("failed to list messages: %w", err))
				return
			}

			for _, ref := range resp.Messages {
				msg, err := s.svc.Get(ctx, s.userID, ref.Id)
				if err != nil {
					yield(sources.Item{}, fmt.Errorf("failed to get message %s: %w", ref.Id, err))
					return
				}
				scanned++

				if !s.yieldAttachments(ctx, msg, yield) {
					return
				}
			}

			log.Debug().
				Int("messages", len(resp.Messages)).
				Int("scanned", scanned).
				Msg("Scanned gmail page")

			if resp.NextPageToken == "" || scanned >= s.maxMessages {
				return
			}
			pageToken = resp.NextPageToken
		}
	}
}

// yieldAttachments reports false when iteration must stop.
func (s *Source) yieldAttachments(ctx context.Context, msg *gmail.Message, yield func(sources.Item, error) bool) bool {
	if msg.Payload == nil {
		return true
	}
	received := time.UnixMilli(msg.InternalDate).UTC()

	for _, part := range attachmentParts(msg.Payload) {
		body, err := s.svc.Attachment(ctx, s.userID, msg.Id, part.Body.AttachmentId)
		if err != nil {
			yield(sources.Item{}, fmt.Errorf("failed to get attachment %s of message %s: %w", part.Filename, msg.Id, err))
			return false
		}
		data, err := decodeAttachment(body.Data)
		if err != nil {
			yield(sources.Item{}, fmt.Errorf("failed to decode attachment %s of message %s: %w", part.Filename, msg.Id, err))
			return false
		}

		item := sources.Item{
			Name:    part.Filename,
			Time:    received,
			Content: sources.NewBufferedContent(data),
		}
		if !yield(item, nil) {
			return false
		}
	}
	return true
}

// attachmentParts returns every part carrying an attachment reference,
// including those nested inside multipart/alternative or multipart/related.
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	var parts []*gmail.MessagePart
	if part.Body != nil && part.Body.AttachmentId != "" {
		parts = append(parts, part)
	}
	for _, child := range part.Parts {
		parts = append(parts, attachmentParts(child)...)
	}
	return parts
}

// decodeAttachment decodes base64url data with or without padding.
func decodeAttachment(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
