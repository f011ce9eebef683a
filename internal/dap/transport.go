// Package dap carries Debug Adapter Protocol traffic.
//
// It provides Content-Length framed transports over a subprocess, a stream
// pair, a TCP connection or any io.ReadWriteCloser, a WebSocket transport
// that carries one message per text frame, and Conn, which decodes client
// requests (including the mips-specific custom requests) and encodes
// responses and events using github.com/google/go-dap.
package dap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Transport moves whole protocol messages.
type Transport interface {
	// Send writes one message.
	Send(msg *Message) error

	// Receive reads the next message.
	Receive() (*Message, error)

	// Close closes the transport.
	Close() error
}

// Message is one protocol message with its framing headers.
type Message struct {
	// ContentLength is the length of the content.
	ContentLength int

	// ContentType is the MIME type (optional).
	ContentType string

	// Content is the JSON content.
	Content json.RawMessage
}

// NewMessage wraps content in a Message.
func NewMessage(content []byte) *Message {
	return &Message{ContentLength: len(content), Content: content}
}

// StdioTransport implements Transport over stdin/stdout of a subprocess.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStdioTransport starts cmd and frames messages over its pipes.
func NewStdioTransport(cmd *exec.Cmd) (*StdioTransport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		reader: bufio.NewReader(stdout),
	}, nil
}

// Send implements Transport.
func (t *StdioTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.stdin, msg)
}

// Receive implements Transport.
func (t *StdioTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close closes the pipes and waits for the subprocess. A process that does
// not exit on stdin EOF is killed.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stdin.Close()
	t.stdout.Close()

	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}

	err := t.cmd.Wait()
	if _, ok := err.(*exec.ExitError); ok {
		return nil
	}
	return err
}

// StreamTransport implements Transport over a separate reader and writer,
// typically the adapter's own stdin and stdout.
type StreamTransport struct {
	reader *bufio.Reader
	w      io.Writer
	closer io.Closer
	mu     sync.Mutex
}

// NewStreamTransport creates a transport reading r and writing w. Close
// closes r when it is an io.Closer.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{reader: bufio.NewReader(r), w: w}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// Send implements Transport.
func (t *StreamTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.w, msg)
}

// Receive implements Transport.
func (t *StreamTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close implements Transport.
func (t *StreamTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// SocketTransport implements Transport over a TCP connection.
type SocketTransport struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewSocketTransport dials address.
func NewSocketTransport(address string) (*SocketTransport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewSocketTransportFromConn(conn), nil
}

// NewSocketTransportFromConn wraps an accepted connection.
func NewSocketTransportFromConn(conn net.Conn) *SocketTransport {
	return &SocketTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Send implements Transport.
func (t *SocketTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.conn, msg)
}

// Receive implements Transport.
func (t *SocketTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close implements Transport.
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}

// RawTransport wraps any io.ReadWriteCloser as a Transport.
type RawTransport struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewRawTransport creates a transport from any ReadWriteCloser.
func NewRawTransport(rwc io.ReadWriteCloser) *RawTransport {
	return &RawTransport{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
	}
}

// NewPipe returns two connected in-memory transports.
func NewPipe() (*RawTransport, *RawTransport) {
	a, b := net.Pipe()
	return NewRawTransport(a), NewRawTransport(b)
}

// Send implements Transport.
func (t *RawTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeMessage(t.rwc, msg)
}

// Receive implements Transport.
func (t *RawTransport) Receive() (*Message, error) {
	return readMessage(t.reader)
}

// Close implements Transport.
func (t *RawTransport) Close() error {
	return t.rwc.Close()
}

// writeMessage writes headers and content in a single write so concurrent
// writers on an unbuffered pipe can not interleave.
func writeMessage(w io.Writer, msg *Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(msg.Content))
	if msg.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", msg.ContentType)
	}
	b.WriteString("\r\n")
	b.Write(msg.Content)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// MaxContentLength is the maximum allowed content length (10MB).
const MaxContentLength = 10 * 1024 * 1024

// readMessage reads one framed message.
func readMessage(r *bufio.Reader) (*Message, error) {
	var contentLength int
	var contentType string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			length, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: content-length %q", ErrInvalidHeader, value)
			}
			if length < 0 || length > MaxContentLength {
				return nil, fmt.Errorf("%w: %d", ErrContentTooLarge, length)
			}
			contentLength = length
		case "content-type":
			contentType = value
		}
	}

	if contentLength == 0 {
		return nil, ErrMissingContentLength
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return &Message{
		ContentLength: contentLength,
		ContentType:   contentType,
		Content:       content,
	}, nil
}
