package evidence

import (
	"context"
	"fmt"

	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Archiver stores captured evidence images under a stable name.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

type azureArchiver struct {
	client    *azblob.Client
	container string
}

// NewAzureArchiver creates an archiver backed by Azure blob storage.
func NewAzureArchiver(accountName, accountKey, container string) (Archiver, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid storage credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureArchiver{client: client, container: container}, nil
}

func (a *azureArchiver) Archive(ctx context.Context, name string, data []byte) error {
	contentType := "image/jpeg"
	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return apperrors.NewNetworkError("evidence upload failed", err)
	}
	logger.ForComponent("evidence").WithField("blob", name).Debug("Archived evidence image")
	return nil
}
