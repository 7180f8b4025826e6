// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/speedtrace/logcore/internal/normalize"
	"github.com/speedtrace/logcore/pkg/log"
)

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	dispatchWindow = 30 * time.Second
)

// job is one in-flight request, handed to the interactive goroutine with
// a reply channel the worker blocks on for up to dispatchWindow.
type job struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Server is the IPC command plane: a TCP loopback listener (spec.md
// §4.13) plus the single interactive goroutine that owns the Store.
type Server struct {
	addr  string
	store *Store
	jobs  chan job
}

// NewServer constructs a Server bound to addr (e.g. "127.0.0.1:52384")
// using norm to canonicalise channel names on load.
func NewServer(addr string, norm *normalize.Normalizer) *Server {
	return &Server{
		addr:  addr,
		store: NewStore(norm),
		jobs:  make(chan job, 64),
	}
}

// Run starts the interactive goroutine and the accept loop, blocking
// until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go s.runInteractive(ctx)

	log.Infof("ipcserver: listening on %s", s.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// runInteractive drains s.jobs one at a time: the cooperative single
// thread that owns the Store (spec.md §5).
func (s *Server) runInteractive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, chanOK := <-s.jobs:
			if !chanOK {
				return
			}
			resp := s.store.dispatch(j.ctx, j.req)
			select {
			case j.reply <- resp:
			default:
				// Worker already gave up waiting (dispatchWindow elapsed).
			}
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if !s.reply(conn, errResponse("Invalid command JSON: %v", err)) {
				return
			}
			continue
		}

		resp, availableOK := s.submit(ctx, req)
		if !availableOK {
			s.reply(conn, resp)
			return
		}
		if !s.reply(conn, resp) {
			return
		}
	}
}

// submit forwards req to the interactive goroutine and waits up to
// dispatchWindow for a response. The second return value is false when
// the connection should be closed after the reply is written (timeout or
// shutdown), matching spec.md §4.13's "closes the connection" contract.
func (s *Server) submit(ctx context.Context, req Request) (Response, bool) {
	reply := make(chan Response, 1)
	select {
	case s.jobs <- job{ctx: ctx, req: req, reply: reply}:
	default:
		select {
		case s.jobs <- job{ctx: ctx, req: req, reply: reply}:
		case <-time.After(dispatchWindow):
			return errResponse("GUI is not responding"), false
		case <-ctx.Done():
			return errResponse("GUI is not responding"), false
		}
	}

	select {
	case resp := <-reply:
		return resp, true
	case <-time.After(dispatchWindow):
		return errResponse("Timeout waiting for GUI response"), false
	case <-ctx.Done():
		return errResponse("GUI is not responding"), false
	}
}

func (s *Server) reply(conn net.Conn, resp Response) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	encoded = append(encoded, '\n')
	_, err = conn.Write(encoded)
	return err == nil
}
