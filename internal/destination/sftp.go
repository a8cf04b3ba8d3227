package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPDispatcher delivers over SFTP. Same required/optional shape as FTP,
// plus private_key / private_key_passphrase as an alternative to password.
type SFTPDispatcher struct{}

type sftpConfig struct {
	host                  string
	port                  int
	username              string
	password              string
	privateKey            string
	privateKeyPassphrase  string
	remotePath            string
	timeoutSeconds        int
}

func parseSFTPConfig(config map[string]interface{}) sftpConfig {
	c := sftpConfig{port: 22, remotePath: "/", timeoutSeconds: 60}
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
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		c.timeoutSeconds = int(v)
	}
	return c
}

func (s *SFTPDispatcher) connect(ctx context.Context, c sftpConfig) (*sftp.Client, *ssh.Client, error) {
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
			return nil, nil, nonTransient(fmt.Errorf("destination: sftp: parse private key: %w", err))
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.password != "" {
		auth = append(auth, ssh.Password(c.password))
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is out of scope; destinations are operator-configured
		Timeout:         time.Duration(c.timeoutSeconds) * time.Second,
	}

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	dialer := net.Dialer{Timeout: sshCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("destination: sftp: dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, nil, nonTransient(fmt.Errorf("destination: sftp: handshake: %w", err))
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("destination: sftp: new client: %w", err)
	}
	return client, sshClient, nil
}

func ensureRemoteDirSFTP(client *sftp.Client, dir string) error {
	dir = strings.Trim(path.Clean(strings.ReplaceAll(dir, "\\", "/")), "/")
	if dir == "" || dir == "." {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, seg := range segments {
		current += "/" + seg
		if err := client.Mkdir(current); err != nil {
			continue
		}
	}
	return nil
}

func (s *SFTPDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseSFTPConfig(config)
	client, sshClient, err := s.connect(ctx, c)
	if err != nil {
		return SaveResult{}, err
	}
	defer client.Close()
	defer sshClient.Close()

	full := path.Join(c.remotePath, strings.ReplaceAll(relativePath, "\\", "/"))
	if err := ensureRemoteDirSFTP(client, path.Dir(full)); err != nil {
		return SaveResult{}, fmt.Errorf("destination: sftp: mkdir: %w", err)
	}

	f, err := client.Create(full)
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: sftp: create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return SaveResult{}, fmt.Errorf("destination: sftp: copy: %w", err)
	}

	return SaveResult{Success: true, FinalPath: full}, nil
}

func (s *SFTPDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseSFTPConfig(config)
	client, sshClient, err := s.connect(ctx, c)
	if err != nil {
		return TestResult{}, err
	}
	defer client.Close()
	defer sshClient.Close()

	full := path.Join(c.remotePath, "reef-test", "connectivity-check")
	content := []byte("reef connectivity check")
	if err := ensureRemoteDirSFTP(client, path.Dir(full)); err != nil {
		return TestResult{}, fmt.Errorf("destination: sftp: test mkdir: %w", err)
	}
	f, err := client.Create(full)
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: sftp: test create: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(content)); err != nil {
		f.Close()
		return TestResult{}, fmt.Errorf("destination: sftp: test write: %w", err)
	}
	f.Close()
	_ = client.Remove(full)

	return TestResult{Success: true, FinalPath: full, Bytes: int64(len(content)), Message: "ok"}, nil
}

func (s *SFTPDispatcher) Compensate(ctx context.Context, config map[string]interface{}, remotePath string) error {
	c := parseSFTPConfig(config)
	client, sshClient, err := s.connect(ctx, c)
	if err != nil {
		return err
	}
	defer client.Close()
	defer sshClient.Close()
	if err := client.Remove(remotePath); err != nil {
		return fmt.Errorf("destination: sftp: compensate: %w", err)
	}
	return nil
}
