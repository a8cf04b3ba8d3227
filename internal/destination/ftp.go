package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPDispatcher delivers to a plain FTP server. Required config: host,
// username, password; optional: port (default 21), remote_path (default
// "/"), use_ssl, use_passive_mode, timeout_seconds (default 60).
type FTPDispatcher struct{}

type ftpConfig struct {
	host            string
	port            int
	username        string
	password        string
	remotePath      string
	useSSL          bool
	usePassiveMode  bool
	timeoutSeconds  int
}

func parseFTPConfig(config map[string]interface{}) ftpConfig {
	c := ftpConfig{port: 21, remotePath: "/", usePassiveMode: true, timeoutSeconds: 60}
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
	if v, ok := config["use_ssl"].(bool); ok {
		c.useSSL = v
	}
	if v, ok := config["use_passive_mode"].(bool); ok {
		c.usePassiveMode = v
	}
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		c.timeoutSeconds = int(v)
	}
	return c
}

func (f *FTPDispatcher) connect(ctx context.Context, c ftpConfig) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(time.Duration(c.timeoutSeconds) * time.Second),
	}
	if !c.usePassiveMode {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("destination: ftp: dial: %w", err)
	}
	if err := conn.Login(c.username, c.password); err != nil {
		conn.Quit()
		return nil, nonTransient(fmt.Errorf("destination: ftp: login: %w", err))
	}
	return conn, nil
}

// ensureRemoteDir creates every missing directory segment of dir, FTP's
// CREATE-all-implied-dirs contract
func ensureRemoteDir(conn *ftp.ServerConn, dir string) error {
	dir = strings.Trim(path.Clean(strings.ReplaceAll(dir, "\\", "/")), "/")
	if dir == "" || dir == "." {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, seg := range segments {
		current += "/" + seg
		if err := conn.MakeDir(current); err != nil {
			// Already exists is not an error; the ftp library does not
			// expose a typed error for this, so tolerate any MKD failure
			// and let the subsequent STOR surface a real problem.
			continue
		}
	}
	return nil
}

func (f *FTPDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseFTPConfig(config)
	conn, err := f.connect(ctx, c)
	if err != nil {
		return SaveResult{}, err
	}
	defer conn.Quit()

	full := path.Join(c.remotePath, strings.ReplaceAll(relativePath, "\\", "/"))
	if err := ensureRemoteDir(conn, path.Dir(full)); err != nil {
		return SaveResult{}, fmt.Errorf("destination: ftp: mkdir: %w", err)
	}

	if err := conn.Stor(full, r); err != nil {
		return SaveResult{}, fmt.Errorf("destination: ftp: stor: %w", err)
	}

	return SaveResult{Success: true, FinalPath: full}, nil
}

func (f *FTPDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseFTPConfig(config)
	conn, err := f.connect(ctx, c)
	if err != nil {
		return TestResult{}, err
	}
	defer conn.Quit()

	full := path.Join(c.remotePath, "reef-test", "connectivity-check")
	content := []byte("reef connectivity check")
	if err := ensureRemoteDir(conn, path.Dir(full)); err != nil {
		return TestResult{}, fmt.Errorf("destination: ftp: test mkdir: %w", err)
	}
	if err := conn.Stor(full, bytes.NewReader(content)); err != nil {
		return TestResult{}, fmt.Errorf("destination: ftp: test stor: %w", err)
	}
	_ = conn.Delete(full)

	return TestResult{Success: true, FinalPath: full, Bytes: int64(len(content)), Message: "ok"}, nil
}

func (f *FTPDispatcher) Compensate(ctx context.Context, config map[string]interface{}, remotePath string) error {
	c := parseFTPConfig(config)
	conn, err := f.connect(ctx, c)
	if err != nil {
		return err
	}
	defer conn.Quit()
	if err := conn.Delete(remotePath); err != nil {
		return fmt.Errorf("destination: ftp: compensate: %w", err)
	}
	return nil
}
