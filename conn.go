package imap

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.Mutex{}
)

// Dialer is one authenticated IMAP connection. All commands issued through
// a Dialer are serialized; use Clone for an independent connection.
type Dialer struct {
	conn net.Conn
	r    *bufio.Reader
	mu   sync.Mutex

	// Folder is the wire (modified UTF-7) name of the selected mailbox.
	Folder    string
	ReadOnly  bool
	Username  string
	Password  string
	Host      string
	Port      int
	Connected bool
	ConnNum   int
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on (re)connection instead of LOGIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
}

func dialHost(host string, port int) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, strconv.Itoa(port)), cfg)
}

// New creates a new IMAP connection using username/password authentication.
// A zero port means DefaultPort.
func New(username string, password string, host string, port int) (*Dialer, error) {
	return connect(username, password, host, port, false)
}

// NewWithOAuth2 creates a new IMAP connection using XOAUTH2 authentication.
func NewWithOAuth2(username string, accessToken string, host string, port int) (*Dialer, error) {
	return connect(username, accessToken, host, port, true)
}

func connect(username, secret, host string, port int, useXOAUTH2 bool) (d *Dialer, err error) {
	if port == 0 {
		port = DefaultPort
	}

	nextConnNumMutex.Lock()
	connNum := nextConnNum
	nextConnNum++
	nextConnNumMutex.Unlock()

	// Retry only the connection establishment, not authentication
	err = retry.Retry(func() error {
		debugLog(connNum, "", "establishing connection", "host", host, "port", port)
		conn, err := dialHost(host, port)
		if err != nil {
			debugLog(connNum, "", "failed to connect", "error", err)
			return err
		}
		d = &Dialer{
			Username:   username,
			Password:   secret,
			Host:       host,
			Port:       port,
			ConnNum:    connNum,
			useXOAUTH2: useXOAUTH2,
		}
		return d.attach(conn)
	}, RetryCount, func(err error) error {
		warnLog(connNum, "", "failed to connect, retrying shortly", "error", err)
		if d != nil && d.conn != nil {
			_ = d.conn.Close()
		}
		return nil
	}, func() error {
		debugLog(connNum, "", "retrying connection now")
		return nil
	})
	if err != nil {
		errorLog(connNum, "", "failed to establish connection", "error", err)
		if d != nil && d.conn != nil {
			_ = d.conn.Close()
		}
		return nil, err
	}

	// Authentication failures are not retried.
	if err = d.auth(); err != nil {
		debugLog(connNum, "", "authentication failed", "error", err)
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

// attach binds conn to the dialer and consumes the server greeting.
func (d *Dialer) attach(conn net.Conn) error {
	d.conn = conn
	d.r = bufio.NewReader(conn)
	d.Connected = true

	greeting, err := d.r.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		d.Connected = false
		return fmt.Errorf("imap greeting: %w", err)
	}
	greeting = strings.TrimSpace(greeting)
	debugLog(d.ConnNum, "", "server greeting", "greeting", greeting)
	if strings.HasPrefix(strings.ToUpper(greeting), "* BYE") {
		_ = conn.Close()
		d.Connected = false
		return fmt.Errorf("imap greeting: server refused connection: %s", greeting)
	}
	return nil
}

func (d *Dialer) auth() error {
	if d.useXOAUTH2 {
		return d.authenticate(d.Username, d.Password)
	}
	return d.login(d.Username, d.Password)
}

// Clone creates an independent connection with the same credentials and
// selected mailbox.
func (d *Dialer) Clone() (d2 *Dialer, err error) {
	d2, err = connect(d.Username, d.Password, d.Host, d.Port, d.useXOAUTH2)
	if err != nil {
		return nil, err
	}
	if d.Folder != "" {
		if err = d2.selectMailbox(d.Folder, d.ReadOnly); err != nil {
			_ = d2.Close()
			return nil, fmt.Errorf("imap clone: %w", err)
		}
	}
	return d2, nil
}

// Close closes the IMAP connection
func (d *Dialer) Close() (err error) {
	if d.Connected {
		debugLog(d.ConnNum, d.Folder, "closing connection")
		err = d.conn.Close()
		d.Connected = false
		if err != nil {
			return fmt.Errorf("imap close: %w", err)
		}
	}
	return nil
}

// Reconnect closes and reopens the connection, re-authenticates with the
// original method and restores the selected mailbox.
func (d *Dialer) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnect()
}

// Noop keeps the connection alive. A dropped connection is re-established
// like for any other command.
func (d *Dialer) Noop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.exec("NOOP", false, RetryCount, nil)
	return err
}

func (d *Dialer) reconnect() error {
	_ = d.Close()
	debugLog(d.ConnNum, d.Folder, "reopening connection")

	conn, err := dialHost(d.Host, d.Port)
	if err != nil {
		return fmt.Errorf("imap reconnect dial: %w", err)
	}
	if err = d.attach(conn); err != nil {
		return fmt.Errorf("imap reconnect: %w", err)
	}

	if err := d.auth(); err != nil {
		_ = d.conn.Close()
		d.Connected = false
		return fmt.Errorf("imap reconnect auth: %w", err)
	}

	if d.Folder != "" {
		if err := d.selectMailbox(d.Folder, d.ReadOnly); err != nil {
			return fmt.Errorf("imap reconnect select: %w", err)
		}
	}

	return nil
}
