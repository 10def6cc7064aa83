package gmail

import (
	"context"

	"google.golang.org/api/gmail/v1"
)

// ListRequest is one call to users.messages.list.
type ListRequest struct {
	UserID    string
	Query     string
	LabelIDs  []string
	PageToken string
}

// MessageService is the part of the Gmail v1 API the mailbox source needs.
type MessageService interface {
	List(ctx context.Context, req ListRequest) (*gmail.ListMessagesResponse, error)
	Get(ctx context.Context, userID, messageID string) (*gmail.Message, error)
	Attachment(ctx context.Context, userID, messageID, attachmentID string) (*gmail.MessagePartBody, error)
}

type apiService struct {
	svc *gmail.Service
}

// NewMessageService adapts a Gmail v1 client to MessageService.
func NewMessageService(svc *gmail.Service) MessageService {
	return &apiService{svc: svc}
}

func (a *apiService) List(ctx context.Context, req ListRequest) (*gmail.ListMessagesResponse, error) {
	call := a.svc.Users.Messages.List(req.UserID)
	if req.Query != "" {
		call = call.Q(req.Query)
	}
	if len(req.LabelIDs) > 0 {
		call = call.LabelIds(req.LabelIDs...)
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}
	return call.Context(ctx).Do()
}

func (a *apiService) Get(ctx context.Context, userID, messageID string) (*gmail.Message, error) {
	return a.svc.Users.Messages.Get(userID, messageID).Format("full").Context(ctx).Do()
}

func (a *apiService) Attachment(ctx context.Context, userID, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	return a.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
}
