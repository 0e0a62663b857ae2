// Command ikedemux wires a UDP listener, the SA table, and the
// Exchange Dispatcher together. It registers no exchange-specific
// handler bodies of its own (those are out of scope, spec.md §1) —
// every Handlers field below just suspends once and then completes
// Ok with no reply, purely so the whole pipeline (lookup, windowing,
// transition selection, completion) is exercised end to end by a real
// socket loop.
package main

import (
	"flag"
	"net"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/msgboxio/ikedemux/demux"
	"github.com/msgboxio/ikedemux/sa"
	"github.com/msgboxio/ikedemux/transport"
)

// connSender adapts transport.Conn to demux.Sender.
type connSender struct {
	conn transport.Conn
}

func (s connSender) Send(b []byte, to net.Addr) error {
	return s.conn.WritePacket(b, to)
}

// stubHandler returns a Handler that suspends once and resumes via a
// real Dispatcher.Resume call, standing in for the external
// collaborator (e.g. an auth backend) a real handler body would wait
// on (spec.md §1, "external collaborators"). md.Continuation is nil on
// first entry and is whatever the handler itself returned as
// TransitionResult.Continuation once Resume re-drives it (§4.8
// "Suspend"); the handler, not demux, decides what that value means.
func stubHandler(d **demux.Dispatcher, name string, logger log.Logger) demux.Handler {
	return func(s *sa.IkeSa, md *demux.MessageDigest) demux.TransitionResult {
		if md.Continuation != nil {
			level.Debug(logger).Log("msg", "stub handler resuming", "row", name, "sa", s)
			return demux.TransitionResult{Outcome: demux.Ok}
		}
		level.Debug(logger).Log("msg", "stub handler suspending", "row", name, "sa", s)
		go func(s *sa.IkeSa) {
			(*d).Resume(s)
		}(s)
		return demux.TransitionResult{Outcome: demux.Suspend, Continuation: name}
	}
}

func main() {
	listen := flag.String("listen", ":500", "UDP address to listen on")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowAll())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	conn, err := transport.Listen("udp", *listen)
	if err != nil {
		level.Error(logger).Log("msg", "listen failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	cookie, err := demux.NewCookieSecret()
	if err != nil {
		level.Error(logger).Log("msg", "cookie secret init failed", "err", err)
		os.Exit(1)
	}

	// d is forward-declared so the stub handlers below can close over
	// the dispatcher that will invoke them, to call its Resume method
	// once their (stand-in) async dependency completes.
	var d *demux.Dispatcher

	handlers := demux.Handlers{
		SaInitRequest:         stubHandler(&d, "SaInitRequest", logger),
		SaInitResponse:        stubHandler(&d, "SaInitResponse", logger),
		AuthRequest:           stubHandler(&d, "AuthRequest", logger),
		AuthResponse:          stubHandler(&d, "AuthResponse", logger),
		CreateChildRequest:    stubHandler(&d, "CreateChildRequest", logger),
		CreateChildResponse:   stubHandler(&d, "CreateChildResponse", logger),
		InformationalRequest:  stubHandler(&d, "InformationalRequest", logger),
		InformationalResponse: stubHandler(&d, "InformationalResponse", logger),
	}

	d = &demux.Dispatcher{
		Table:  sa.NewTable(),
		Rows:   demux.NewTransitionTable(handlers),
		Cookie: cookie,
		Sender: connSender{conn: conn},
		Logger: logger,
	}

	level.Info(logger).Log("msg", "listening", "addr", *listen)
	for {
		dg, err := transport.Recv(conn)
		if err != nil {
			level.Error(logger).Log("msg", "read failed", "err", err)
			continue
		}
		d.Dispatch(dg.Data, dg.RemoteAddr, dg.LocalAddr)
	}
}
