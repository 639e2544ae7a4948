// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"net"
	"strconv"
)

// Client identifies a caller by its network endpoint.
// It is comparable and safe to use as a map key.
type Client struct {
	Host string
	Port uint16
}

// NewClient returns a Client for the given host and port.
func NewClient(host string, port uint16) Client {
	return Client{Host: host, Port: port}
}

// ParseClient builds a Client from a "host:port" address such as
// http.Request.RemoteAddr.
func ParseClient(addr string) (Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Client{}, fmt.Errorf("invalid client address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Client{}, fmt.Errorf("invalid client port %q: %w", portStr, err)
	}
	return Client{Host: host, Port: uint16(port)}, nil
}

func (c Client) String() string {
	return net.JoinHostPort(c.Host, strconv.FormatUint(uint64(c.Port), 10))
}
