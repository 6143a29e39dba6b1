// Package testutil provides fakes shared by the gateway's integration
// tests: principally a fake Cursor upstream speaking the §4.7/§4.8 framed
// protocol, so the server package can exercise the full request path
// without calling the real api2.cursor.sh.
package testutil

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"encoding/binary"
	"net/http"
	"net/http/httptest"

	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
)

// Frame renders one Connect-RPC frame: [type:u8][len:u32be][payload].
func Frame(typ byte, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(typ)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	b.Write(lenBuf[:])
	b.Write(payload)
	return b.Bytes()
}

// GzipBytes gzip-compresses raw for use with frame types 1/3.
func GzipBytes(raw []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(raw)
	w.Close()
	return buf.Bytes()
}

// ContentStreamFrames builds the canonical success stream of spec.md §8
// example 1: a ContentStart preamble, one type-0 frame per chunk, then the
// 2-byte JSON StreamEnd terminator.
func ContentStreamFrames(chunks ...string) []byte {
	var out bytes.Buffer
	out.Write(Frame(0, nil))
	for _, c := range chunks {
		msg := cursorpb.StreamChatResponse{Text: c}
		out.Write(Frame(0, msg.Marshal()))
	}
	out.Write(Frame(2, []byte("{}")))
	return out.Bytes()
}

// ErrorStreamFrames builds a single type-2 ChatError frame carrying a
// base64'd ErrorDetails payload (spec.md §8 example 4).
func ErrorStreamFrames(chatErrorJSON []byte) []byte {
	return Frame(2, chatErrorJSON)
}

// FakeUpstream starts an httptest.NewTLSServer that replies to every POST
// with body, as a stand-in for api2.cursor.sh's StreamUnifiedChatWithTools
// RPC. upstream.Caller always dials "https://", so the fake must speak TLS
// too; callers point upstream.Config.ReverseProxyHost at the returned
// server's host:port (stripped of scheme) and use Pool for the proxy pool so
// the self-signed certificate is accepted.
func FakeUpstream(status int, body []byte) *httptest.Server {
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(status)
		w.Write(body)
	}))
}

// Pool returns a proxypool.Pool whose clients skip TLS certificate
// verification, for dialing a FakeUpstream server.
func Pool() *proxypool.Pool {
	base := proxypool.DefaultTransport(0, 0, nil)
	base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return proxypool.New(base)
}
