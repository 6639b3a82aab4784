package net

import (
	"fmt"
	"io"
	stdnet "net"
	"syscall"
)

// Conn is the byte stream a channel owns. Implementations must be
// non-blocking: Read and Write return syscall.EAGAIN (or an equivalent the
// buffer package recognizes) instead of suspending, and Read reports io.EOF
// when the peer has shut down.
type Conn interface {
	io.Reader
	io.Writer
	Close() error
	RemoteAddr() string
}

// Listener hands out non-blocking connections without blocking itself.
// Accept returns a would-block error when no connection is pending.
type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}

// Listen opens a non-blocking TCP listener on addr (host:port, IPv4 or
// IPv6).
//
// The runtime's netpoller is deliberately bypassed here: an expired
// net.Conn deadline fails a Read even when bytes are already buffered, so
// deadline tricks cannot express "give me what is ready, never wait". Raw
// O_NONBLOCK sockets can, and the endpoint's zero-timeout tick is built on
// them.
func Listen(addr string) (Listener, error) {
	tcpAddr, err := stdnet.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net: resolve %q: %w", addr, err)
	}

	sa, family, err := sockaddrFor(tcpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("net: socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("net: setsockopt: %w", err)
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("net: bind %q: %w", addr, err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("net: set nonblock: %w", err)
	}
	if err := syscall.Listen(fd, syscall.SOMAXCONN); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("net: listen %q: %w", addr, err)
	}

	bound := addr
	if lsa, err := syscall.Getsockname(fd); err == nil {
		bound = sockaddrString(lsa)
	}
	return &sockListener{fd: fd, addr: bound}, nil
}

type sockListener struct {
	fd   int
	addr string
}

func (l *sockListener) Accept() (Conn, error) {
	nfd, sa, err := syscall.Accept(l.fd)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(nfd, true); err != nil {
		syscall.Close(nfd)
		return nil, fmt.Errorf("net: set nonblock: %w", err)
	}
	// Frames are already batched one per tick; Nagle only adds latency.
	syscall.SetsockoptInt(nfd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	return &sockConn{fd: nfd, remote: sockaddrString(sa)}, nil
}

func (l *sockListener) Addr() string {
	return l.addr
}

func (l *sockListener) Close() error {
	return syscall.Close(l.fd)
}

// sockConn is a raw non-blocking TCP connection.
type sockConn struct {
	fd     int
	remote string
}

func (c *sockConn) Read(p []byte) (int, error) {
	n, err := syscall.Read(c.fd, p)
	if n < 0 {
		n = 0
	}
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		// An orderly shutdown by the peer reads as zero bytes.
		return 0, io.EOF
	}
	return n, nil
}

func (c *sockConn) Write(p []byte) (int, error) {
	n, err := syscall.Write(c.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (c *sockConn) Close() error {
	return syscall.Close(c.fd)
}

func (c *sockConn) RemoteAddr() string {
	return c.remote
}

func sockaddrFor(addr *stdnet.TCPAddr) (syscall.Sockaddr, int, error) {
	ip := addr.IP
	if ip == nil {
		ip = stdnet.IPv4zero
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &syscall.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, syscall.AF_INET, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &syscall.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip16)
		return sa, syscall.AF_INET6, nil
	}
	return nil, 0, fmt.Errorf("net: unsupported address %q", addr)
}

func sockaddrString(sa syscall.Sockaddr) string {
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return stdnet.JoinHostPort(stdnet.IP(a.Addr[:]).String(), fmt.Sprint(a.Port))
	case *syscall.SockaddrInet6:
		return stdnet.JoinHostPort(stdnet.IP(a.Addr[:]).String(), fmt.Sprint(a.Port))
	default:
		return "unknown"
	}
}
