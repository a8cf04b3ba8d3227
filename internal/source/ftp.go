package source

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPFetcher reads files matching a glob pattern from an FTP directory.
type FTPFetcher struct{}

type ftpSourceConfig struct {
	host           string
	port           int
	username       string
	password       string
	remotePath     string
	archivePath    string
	timeoutSeconds int
}

func parseFTPSourceConfig(config map[string]interface{}) ftpSourceConfig {
	c := ftpSourceConfig{port: 21, remotePath: "/", timeoutSeconds: 60}
	if v, ok := config["host"].(string); ok {
		c.host = v
	}
	if v, ok := config["port"].(float64); ok {
		c.port = int(v)
	}
	if v, ok := config["username"].(string); ok {
		c.username = v
	}
	if v, ok := config["password"].(string); ok {
		c.password = v
	}
	if v, ok := config["remote_path"].(string); ok && v != "" {
		c.remotePath = v
	}
	if v, ok := config["archive_path"].(string); ok {
		c.archivePath = v
	}
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		c.timeoutSeconds = int(v)
	}
	return c
}

func (f *FTPFetcher) connect(ctx context.Context, c ftpSourceConfig) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(time.Duration(c.timeoutSeconds)*time.Second))
	if err != nil {
		return nil, fmt.Errorf("source: ftp: dial: %w", err)
	}
	if err := conn.Login(c.username, c.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("source: ftp: login: %w", err)
	}
	return conn, nil
}

func (f *FTPFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseFTPSourceConfig(config)
	conn, err := f.connect(ctx, c)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(c.remotePath)
	if err != nil {
		return nil, fmt.Errorf("source: ftp: list: %w", err)
	}

	var names []string
	modTimes := make(map[string]int64)
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if pattern != "" {
			if ok, _ := path.Match(pattern, e.Name); !ok {
				continue
			}
		}
		names = append(names, e.Name)
		modTimes[e.Name] = e.Time.UnixNano()
	}
	sort.Strings(names)

	chosen := selectItems(names, modTimes, selection)
	items := make([]Item, 0, len(chosen))
	for _, name := range chosen {
		full := path.Join(c.remotePath, name)
		resp, err := conn.Retr(full)
		if err != nil {
			return nil, fmt.Errorf("source: ftp: retr %s: %w", full, err)
		}
		content, err := readAllAndClose(resp)
		if err != nil {
			return nil, fmt.Errorf("source: ftp: read %s: %w", full, err)
		}
		items = append(items, Item{Identifier: full, ContentBytes: content})
	}
	return items, nil
}

func (f *FTPFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseFTPSourceConfig(config)
	if c.archivePath == "" {
		return nil
	}
	conn, err := f.connect(ctx, c)
	if err != nil {
		return err
	}
	defer conn.Quit()

	dest := path.Join(c.archivePath, path.Base(identifier))
	if err := conn.Rename(identifier, dest); err != nil {
		return fmt.Errorf("source: ftp: archive rename: %w", err)
	}
	return nil
}
