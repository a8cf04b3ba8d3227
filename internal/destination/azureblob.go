package destination

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureBlobDispatcher delivers to an Azure Blob Storage container. Required:
// connection_string, container_name. Optional: prefix.
type AzureBlobDispatcher struct{}

type azureBlobConfig struct {
	connectionString string
	containerName    string
	prefix           string
}

func parseAzureBlobConfig(config map[string]interface{}) azureBlobConfig {
	c := azureBlobConfig{}
	if v, ok := config["connection_string"].(string); ok {
		c.connectionString = v
	}
	if v, ok := config["container_name"].(string); ok {
		c.containerName = v
	}
	if v, ok := config["prefix"].(string); ok {
		c.prefix = v
	}
	return c
}

func (a *AzureBlobDispatcher) client(c azureBlobConfig) (*azblob.Client, error) {
	client, err := azblob.NewClientFromConnectionString(c.connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("destination: azureblob: new client: %w", err)
	}
	return client, nil
}

func (a *AzureBlobDispatcher) blobName(c azureBlobConfig, relativePath string) string {
	name := strings.ReplaceAll(relativePath, "\\", "/")
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

func (a *AzureBlobDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseAzureBlobConfig(config)
	client, err := a.client(c)
	if err != nil {
		return SaveResult{}, err
	}

	blobName := a.blobName(c, relativePath)
	if _, err := client.UploadStream(ctx, c.containerName, blobName, r, nil); err != nil {
		return SaveResult{}, fmt.Errorf("destination: azureblob: upload: %w", err)
	}

	return SaveResult{Success: true, FinalPath: fmt.Sprintf("azblob://%s/%s", c.containerName, blobName)}, nil
}

// Test probes the container's properties, then uploads and deletes a small
// test blob, mirroring the S3 dispatcher's bucket-location-probe pattern.
func (a *AzureBlobDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseAzureBlobConfig(config)
	client, err := a.client(c)
	if err != nil {
		return TestResult{}, err
	}

	containerClient := client.ServiceClient().NewContainerClient(c.containerName)
	if _, err := containerClient.GetProperties(ctx, &container.GetPropertiesOptions{}); err != nil {
		return TestResult{}, fmt.Errorf("destination: azureblob: get container properties: %w", err)
	}

	blobName := a.blobName(c, "reef-test/connectivity-check")
	content := []byte("reef connectivity check")
	if _, err := client.UploadBuffer(ctx, c.containerName, blobName, content, nil); err != nil {
		return TestResult{}, fmt.Errorf("destination: azureblob: test upload: %w", err)
	}
	_, _ = client.DeleteBlob(ctx, c.containerName, blobName, nil)

	return TestResult{Success: true, FinalPath: fmt.Sprintf("azblob://%s/%s", c.containerName, blobName), Bytes: int64(len(content)), Message: "ok"}, nil
}

func (a *AzureBlobDispatcher) Compensate(ctx context.Context, config map[string]interface{}, finalPath string) error {
	c := parseAzureBlobConfig(config)
	client, err := a.client(c)
	if err != nil {
		return err
	}
	blobName := strings.TrimPrefix(finalPath, fmt.Sprintf("azblob://%s/", c.containerName))
	if _, err := client.DeleteBlob(ctx, c.containerName, blobName, nil); err != nil {
		return fmt.Errorf("destination: azureblob: compensate: %w", err)
	}
	return nil
}
