package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"syscall"
	"time"
)

const (
	firstServePort = 3500
	maxPortTries   = 1000
)

// GetOutboundIP returns the preferred outbound IP of this machine.
func GetOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// URLtoListenIPandPort returns an ip:port to serve files on, picking the
// local interface that routes to the device behind u.
func URLtoListenIPandPort(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("URLtoListenIPandPort parse error: %w", err)
	}

	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		switch parsed.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}

	return ListenAddrFor(net.JoinHostPort(host, port))
}

// ListenAddrFor is URLtoListenIPandPort for a plain host:port, as used for
// Chromecast devices.
func ListenAddrFor(hostport string) (string, error) {
	conn, err := net.Dial("udp", hostport)
	if err != nil {
		return "", fmt.Errorf("ListenAddrFor UDP call error: %w", err)
	}
	defer conn.Close()

	ip := conn.LocalAddr().(*net.UDPAddr).IP.String()
	port, err := checkAndPickPort(ip, firstServePort)
	if err != nil {
		return "", fmt.Errorf("ListenAddrFor port error: %w", err)
	}

	return net.JoinHostPort(ip, port), nil
}

func checkAndPickPort(ip string, port int) (string, error) {
	for range maxPortTries {
		l, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err == nil {
			l.Close()
			return strconv.Itoa(port), nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return "", fmt.Errorf("port pick error: %w", err)
		}
		port++
	}

	return "", errors.New("port pick error: exceeded maximum attempts")
}

// HostPortIsAlive reports whether a TCP connection to h succeeds within
// two seconds.
func HostPortIsAlive(h string) bool {
	conn, err := net.DialTimeout("tcp", h, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
