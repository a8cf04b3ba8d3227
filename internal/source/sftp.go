package source

import (
	"context"
	"fmt"
	"net"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPFetcher reads files matching a glob pattern from an SFTP directory.
type SFTPFetcher struct{}

type sftpSourceConfig struct {
	host                 string
	port                 int
	username             string
	password             string
	privateKey           string
	privateKeyPassphrase string
	remotePath           string
	archivePath          string
	timeoutSeconds       int
}

func parseSFTPSourceConfig(config map[string]interface{}) sftpSourceConfig {
	c := sftpSourceConfig{port: 22, remotePath: "/", timeoutSeconds: 60}
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
	if v, ok := config["private_key"].(string); ok {
		c.privateKey = v
	}
	if v, ok := config["private_key_passphrase"].(string); ok {
		c.privateKeyPassphrase = v
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

func (s *SFTPFetcher) connect(ctx context.Context, c sftpSourceConfig) (*sftp.Client, *ssh.Client, error) {
	var auth []ssh.AuthMethod
	if c.privateKey != "" {
		var signer ssh.Signer
		var err error
		if c.privateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(c.privateKey), []byte(c.privateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(c.privateKey))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("source: sftp: parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.password != "" {
		auth = append(auth, ssh.Password(c.password))
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is out of scope; sources are operator-configured
		Timeout:         time.Duration(c.timeoutSeconds) * time.Second,
	}

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	dialer := net.Dialer{Timeout: sshCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("source: sftp: dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("source: sftp: handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("source: sftp: new client: %w", err)
	}
	return client, sshClient, nil
}

func (s *SFTPFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseSFTPSourceConfig(config)
	client, sshClient, err := s.connect(ctx, c)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer sshClient.Close()

	entries, err := client.ReadDir(c.remotePath)
	if err != nil {
		return nil, fmt.Errorf("source: sftp: readdir: %w", err)
	}

	var names []string
	modTimes := make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, _ := path.Match(pattern, e.Name()); !ok {
				continue
			}
		}
		names = append(names, e.Name())
		modTimes[e.Name()] = e.ModTime().UnixNano()
	}
	sort.Strings(names)

	chosen := selectItems(names, modTimes, selection)
	items := make([]Item, 0, len(chosen))
	for _, name := range chosen {
		full := path.Join(c.remotePath, name)
		f, err := client.Open(full)
		if err != nil {
			return nil, fmt.Errorf("source: sftp: open %s: %w", full, err)
		}
		content, err := readAllAndClose(f)
		if err != nil {
			return nil, fmt.Errorf("source: sftp: read %s: %w", full, err)
		}
		items = append(items, Item{Identifier: full, ContentBytes: content})
	}
	return items, nil
}

func (s *SFTPFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseSFTPSourceConfig(config)
	if c.archivePath == "" {
		return nil
	}
	client, sshClient, err := s.connect(ctx, c)
	if err != nil {
		return err
	}
	defer client.Close()
	defer sshClient.Close()

	dest := path.Join(c.archivePath, path.Base(identifier))
	if err := client.Rename(identifier, dest); err != nil {
		return fmt.Errorf("source: sftp: archive rename: %w", err)
	}
	return nil
}
