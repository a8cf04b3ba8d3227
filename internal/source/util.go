package source

import "io"

// readAllAndClose drains r fully and closes it if it implements io.Closer,
// shared by the network-backed fetchers.
func readAllAndClose(r io.Reader) ([]byte, error) {
	defer func() {
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
	}()
	return io.ReadAll(r)
}
