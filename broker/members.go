// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import "slices"

// members is an insertion-ordered set of clients.
type members struct {
	order []Client
	index map[Client]struct{}
}

func newMembers(clients ...Client) members {
	m := members{index: make(map[Client]struct{}, len(clients))}
	for _, c := range clients {
		m.add(c)
	}
	return m
}

func (m *members) has(c Client) bool {
	_, ok := m.index[c]
	return ok
}

func (m *members) add(c Client) bool {
	if m.has(c) {
		return false
	}
	m.index[c] = struct{}{}
	m.order = append(m.order, c)
	return true
}

func (m *members) remove(c Client) bool {
	if !m.has(c) {
		return false
	}
	delete(m.index, c)
	m.order = slices.DeleteFunc(m.order, func(o Client) bool { return o == c })
	return true
}

func (m *members) len() int {
	return len(m.order)
}

// list returns a copy of the set in insertion order. It is never nil.
func (m *members) list() []Client {
	out := make([]Client, len(m.order))
	copy(out, m.order)
	return out
}
