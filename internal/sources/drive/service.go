package drive

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
)

// listFields is the projection requested from files.list.
const listFields = "nextPageToken, files(id, name, createdTime)"

// ListRequest is one call to the files.list endpoint.
type ListRequest struct {
	Query     string
	OrderBy   string
	PageToken string
	PageSize  int64
}

// FileService is the part of the Drive v3 API the folder source needs.
type FileService interface {
	List(ctx context.Context, req ListRequest) (*drive.FileList, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

type apiService struct {
	svc *drive.Service
}

// NewFileService adapts a Drive v3 client to FileService.
func NewFileService(svc *drive.Service) FileService {
	return &apiService{svc: svc}
}

func (a *apiService) List(ctx context.Context, req ListRequest) (*drive.FileList, error) {
	call := a.svc.Files.List().
		Q(req.Query).
		Fields(listFields).
		OrderBy(req.OrderBy).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}
	if req.PageSize > 0 {
		call = call.PageSize(req.PageSize)
	}
	return call.Context(ctx).Do()
}

func (a *apiService) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := a.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}
