package serialio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"reefcontrol/internal/logger"
	"reefcontrol/internal/protocol"
)

const (
	defaultBaud      = 115200
	bootDelay        = 1500 * time.Millisecond
	handshakeTimeout = 4 * time.Second
	readChunkTimeout = 200 * time.Millisecond
)

// LineHandler receives every non-empty trimmed line delivered by the
// reader goroutine.
type LineHandler func(line string)

// DisconnectHandler is invoked once when the reader stops on an I/O
// error (not on an explicit Close).
type DisconnectHandler func(err error)

// Client owns the physical serial port. One connection at a time: Open
// tears down any previous one first. Lines are delivered asynchronously
// through the registered handler.
type Client struct {
	log          *logger.Logger
	baud         int
	onLine       LineHandler
	onDisconnect DisconnectHandler

	mu       sync.Mutex
	port     serial.Port
	portName string
	stopOnce *sync.Once
	buf      lineBuffer
}

// NewClient builds an unconnected client.
func NewClient(log *logger.Logger, baud int) *Client {
	if baud <= 0 {
		baud = defaultBaud
	}
	return &Client{log: log, baud: baud}
}

// Handle registers the line and disconnect callbacks. Must be called
// before the first Open; onDisconnect may be nil.
func (c *Client) Handle(onLine LineHandler, onDisconnect DisconnectHandler) {
	c.onLine = onLine
	c.onDisconnect = onDisconnect
}

// Open connects to the named port, waits out the MCU boot delay and
// performs the two-step handshake. On success the reader goroutine is
// started and the greeting and initial status lines are returned.
func (c *Client) Open(portName string) (hello, status string, err error) {
	c.Close()

	mode := &serial.Mode{
		BaudRate: c.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return "", "", fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readChunkTimeout); err != nil {
		_ = port.Close()
		return "", "", fmt.Errorf("set read timeout on %s: %w", portName, err)
	}

	// The board resets on DTR toggle; give the sketch time to boot.
	time.Sleep(bootDelay)

	c.mu.Lock()
	c.port = port
	c.portName = portName
	c.stopOnce = new(sync.Once)
	c.buf.reset()
	c.mu.Unlock()

	hello, err = c.handshake(protocol.QueryHello, protocol.GreetingPrefix)
	if err == nil {
		status, err = c.handshake(protocol.QueryStatus, protocol.StatusPrefix)
	}
	if err != nil {
		c.Close()
		return "", "", err
	}

	go c.readLoop(port)
	return hello, status, nil
}

// handshake writes a query and waits for a line with the expected
// prefix, discarding anything else until the deadline.
func (c *Client) handshake(query, wantPrefix string) (string, error) {
	if err := c.WriteLine(query); err != nil {
		return "", err
	}
	deadline := time.Now().Add(handshakeTimeout)
	for time.Now().Before(deadline) {
		line, err := c.readLineUntil(deadline)
		if err != nil {
			return "", fmt.Errorf("handshake %s: %w", query, err)
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, wantPrefix) {
			return line, nil
		}
		c.log.Debugw("handshake_skip_line", "query", query, "line", line)
	}
	return "", fmt.Errorf("handshake %s: no %q reply within %s", query, wantPrefix, handshakeTimeout)
}

// readLineUntil pulls chunks off the port until a full line or the
// deadline. Returns "" (no error) when a read window elapsed without a
// complete line so the caller can re-check its deadline.
func (c *Client) readLineUntil(deadline time.Time) (string, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return "", fmt.Errorf("port closed")
	}

	chunk := make([]byte, 256)
	for time.Now().Before(deadline) {
		if line, ok := c.buf.next(); ok {
			return line, nil
		}
		n, err := port.Read(chunk)
		if err != nil {
			return "", err
		}
		if n > 0 {
			c.buf.push(chunk[:n])
		}
	}
	return "", nil
}

// WriteLine sends one CRLF-terminated command.
func (c *Client) WriteLine(cmd string) error {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return fmt.Errorf("port not open")
	}
	payload := []byte(strings.TrimSpace(cmd) + "\r\n")
	if _, err := port.Write(payload); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Connected reports whether a port is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port != nil
}

// Port returns the open port name, or "".
func (c *Client) Port() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.portName
}

// Close tears down the connection. Safe to call repeatedly; the
// reader's pending Read fails once the fd closes, which ends it.
func (c *Client) Close() {
	c.mu.Lock()
	port := c.port
	c.port = nil
	c.portName = ""
	c.mu.Unlock()
	if port != nil {
		_ = port.Close()
	}
}

// readLoop blocks on port reads and forwards complete lines. It exits
// on the first read error, firing the disconnect handler unless the
// error came from an explicit Close.
func (c *Client) readLoop(port serial.Port) {
	c.mu.Lock()
	once := c.stopOnce
	c.mu.Unlock()

	chunk := make([]byte, 256)
	for {
		n, err := port.Read(chunk)
		if err != nil {
			once.Do(func() {
				c.mu.Lock()
				wasOpen := c.port == port
				c.mu.Unlock()
				if wasOpen {
					c.log.Errorw("serial_reader_stopped", "err", err)
					c.Close()
					if c.onDisconnect != nil {
						c.onDisconnect(err)
					}
				}
			})
			return
		}
		if n == 0 {
			continue // read timeout window, nothing buffered
		}
		c.buf.push(chunk[:n])
		for {
			line, ok := c.buf.next()
			if !ok {
				break
			}
			if line != "" && c.onLine != nil {
				c.onLine(line)
			}
		}
	}
}

// lineBuffer accumulates raw chunks and yields CR/LF-trimmed lines.
type lineBuffer struct {
	mu      sync.Mutex
	pending []byte
}

func (b *lineBuffer) reset() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

func (b *lineBuffer) push(p []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	b.mu.Unlock()
}

// next pops the earliest complete line, reporting false when none is
// buffered yet.
func (b *lineBuffer) next() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.pending {
		if ch == '\n' {
			line := strings.TrimRight(string(b.pending[:i]), "\r")
			b.pending = b.pending[i+1:]
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}
