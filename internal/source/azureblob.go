package source

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobFetcher reads blobs matching a prefix/glob from a container.
type AzureBlobFetcher struct{}

type azureBlobSourceConfig struct {
	connectionString string
	containerName    string
	prefix           string
	archivePrefix    string
}

func parseAzureBlobSourceConfig(config map[string]interface{}) azureBlobSourceConfig {
	c := azureBlobSourceConfig{}
	if v, ok := config["connection_string"].(string); ok {
		c.connectionString = v
	}
	if v, ok := config["container_name"].(string); ok {
		c.containerName = v
	}
	if v, ok := config["prefix"].(string); ok {
		c.prefix = v
	}
	if v, ok := config["archive_prefix"].(string); ok {
		c.archivePrefix = v
	}
	return c
}

func (a *AzureBlobFetcher) client(c azureBlobSourceConfig) (*azblob.Client, error) {
	client, err := azblob.NewClientFromConnectionString(c.connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("source: azureblob: new client: %w", err)
	}
	return client, nil
}

func (a *AzureBlobFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseAzureBlobSourceConfig(config)
	client, err := a.client(c)
	if err != nil {
		return nil, err
	}

	var names []string
	modTimes := make(map[string]int64)
	pager := client.NewListBlobsFlatPager(c.containerName, &azblob.ListBlobsFlatOptions{Prefix: &c.prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("source: azureblob: list: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			name := *item.Name
			if pattern != "" {
				if ok, _ := path.Match(pattern, path.Base(name)); !ok {
					continue
				}
			}
			names = append(names, name)
			if item.Properties != nil && item.Properties.LastModified != nil {
				modTimes[name] = item.Properties.LastModified.UnixNano()
			}
		}
	}
	sort.Strings(names)

	chosen := selectItems(names, modTimes, selection)
	items := make([]Item, 0, len(chosen))
	for _, name := range chosen {
		resp, err := client.DownloadStream(ctx, c.containerName, name, nil)
		if err != nil {
			return nil, fmt.Errorf("source: azureblob: download %s: %w", name, err)
		}
		content, err := readAllAndClose(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("source: azureblob: read %s: %w", name, err)
		}
		items = append(items, Item{Identifier: fmt.Sprintf("azblob://%s/%s", c.containerName, name), ContentBytes: content})
	}
	return items, nil
}

func (a *AzureBlobFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseAzureBlobSourceConfig(config)
	if c.archivePrefix == "" {
		return nil
	}
	client, err := a.client(c)
	if err != nil {
		return err
	}

	name := identifier
	prefix := fmt.Sprintf("azblob://%s/", c.containerName)
	if len(identifier) > len(prefix) && identifier[:len(prefix)] == prefix {
		name = identifier[len(prefix):]
	}

	srcURL := client.ServiceClient().NewContainerClient(c.containerName).NewBlobClient(name).URL()
	destName := path.Join(c.archivePrefix, path.Base(name))
	destClient := client.ServiceClient().NewContainerClient(c.containerName).NewBlobClient(destName)

	if _, err := destClient.StartCopyFromURL(ctx, srcURL, nil); err != nil {
		return fmt.Errorf("source: azureblob: archive copy: %w", err)
	}
	if _, err := client.DeleteBlob(ctx, c.containerName, name, nil); err != nil {
		return fmt.Errorf("source: azureblob: archive delete original: %w", err)
	}
	return nil
}
