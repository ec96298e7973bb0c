package storage

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// AzureStore uploads evidence images to an Azure Blob container using a SAS
// token. When the container or token is missing the store stays disabled and
// every upload fails cleanly.
type AzureStore struct {
	containerURL string
	sasToken     string
	enabled      bool
	httpc        *http.Client
}

func NewAzureStore(containerURL, sasToken string) *AzureStore {
	enabled := containerURL != "" && sasToken != ""
	if !enabled {
		log.Warn().Msg("Azure Storage not configured, evidence images will not be uploaded")
	} else {
		log.Info().Msg("Azure Storage configured")
	}
	return &AzureStore{
		containerURL: containerURL,
		sasToken:     sasToken,
		enabled:      enabled,
		httpc:        &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload puts the local file into the container as remoteName and returns
// the public blob URL (without the SAS token).
func (s *AzureStore) Upload(localPath, remoteName string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("azure storage is not enabled")
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	blobURL := fmt.Sprintf("%s/%s?%s", s.containerURL, remoteName, s.sasToken)
	req, err := http.NewRequest(http.MethodPut, blobURL, file)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to azure failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("azure rejected upload of %s: status %d", remoteName, resp.StatusCode)
	}

	publicURL := fmt.Sprintf("%s/%s", s.containerURL, remoteName)
	log.Info().Str("blob", remoteName).Msg("Image uploaded to Azure")
	return publicURL, nil
}
