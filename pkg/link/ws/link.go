// Package ws carries the programmer byte link over a websocket, for
// browser front-ends and firewalled hosts.
package ws

import (
	"io"
	"net/http"

	"golang.org/x/net/websocket"
)

// Dial connects to a served programmer link. The returned stream speaks
// raw protocol bytes.
func Dial(url, origin string) (io.ReadWriteCloser, error) {
	return websocket.Dial(url, "", origin)
}

// Handler serves the programmer link: serve is called with the byte
// stream of each accepted connection and should return when the session
// is over.
func Handler(serve func(io.ReadWriter)) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		serve(conn)
	})
}
