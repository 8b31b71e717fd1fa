// Package rpc is the XML-RPC layer of the forwarder: call values, faults,
// per-endpoint server descriptors and the HTTP clients that dispatch calls.
//
// Values follow a construct/release discipline. Whoever constructs a value
// releases it exactly once when it is no longer needed; releasing an array
// does not release the values appended to it.
//
//	params := client.NewArray()          ┐
//	inner  := client.NewArray()          │ constructed by the caller
//	s      := client.NewString("A = 1")  ┘
//	inner.Append(s); params.Append(inner)
//	result := client.Call(ctx, server, "acct", params)
//	release(result, s, inner, params)
package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

// Value is an RPC value constructed for a single call.
type Value interface {
	Release()
}

// ArrayValue is a Value that other values can be appended to.
type ArrayValue interface {
	Value
	Append(v Value) error
}

var (
	// ErrReleased is returned when a value is used after Release.
	ErrReleased = errors.New("rpc: value already released")

	// ErrClientClosed is returned by a Client after Close.
	ErrClientClosed = errors.New("rpc: client closed")
)

// String is an XML-RPC <string>.
type String struct {
	s        string
	released bool
}

// Release marks the string as no longer in use.
func (s *String) Release() { s.released = true }

// String returns the underlying text.
func (s *String) String() string { return s.s }

// Array is an XML-RPC <array>. It holds references to appended values
// but does not own them.
type Array struct {
	items    []Value
	released bool
}

// Append adds v to the end of the array.
func (a *Array) Append(v Value) error {
	if a.released {
		return ErrReleased
	}
	if v == nil {
		return errors.New("rpc: cannot append nil value")
	}
	a.items = append(a.items, v)
	return nil
}

// Len returns the number of items in the array.
func (a *Array) Len() int { return len(a.items) }

// Release drops the array's references to its items.
func (a *Array) Release() {
	a.released = true
	a.items = nil
}

// args converts the array into the positional parameter list understood
// by the xmlrpc encoder.
func (a *Array) args() ([]interface{}, error) {
	if a.released {
		return nil, ErrReleased
	}
	out := make([]interface{}, 0, len(a.items))
	for i, item := range a.items {
		v, err := plain(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func plain(v Value) (interface{}, error) {
	switch t := v.(type) {
	case *String:
		if t.released {
			return nil, ErrReleased
		}
		return t.s, nil
	case *Array:
		return t.args()
	default:
		return nil, fmt.Errorf("rpc: unsupported value type %T", v)
	}
}

// Result is the raw response body of a successful call. Its buffer is
// returned to a shared pool on Release.
type Result struct {
	buf *bytes.Buffer
}

// Bytes returns the response body. It is invalid after Release.
func (r *Result) Bytes() []byte {
	if r.buf == nil {
		return nil
	}
	return r.buf.Bytes()
}

// Release returns the response buffer to the pool.
func (r *Result) Release() {
	if r.buf == nil {
		return
	}
	putBuffer(r.buf)
	r.buf = nil
}

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func putBuffer(b *bytes.Buffer) {
	// Oversized buffers are left to the GC.
	if b.Cap() > 64<<10 {
		return
	}
	bufferPool.Put(b)
}

// validText reports whether s can be carried as XML 1.0 character data.
func validText(s string) error {
	if !utf8.ValidString(s) {
		return errors.New("invalid UTF-8")
	}
	for i, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return fmt.Errorf("character %U at offset %d is not allowed in XML", r, i)
		}
	}
	return nil
}
