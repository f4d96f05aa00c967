// Package statusfs exposes the supervisor state as a read-only 9P file tree.
package statusfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"git.sr.ht/~moody/ninep"
	"github.com/haasonsaas/wlanboot/pkg/supervisor"
	"github.com/rs/zerolog"
)

// DefaultAddr is the conventional 9P port.
const DefaultAddr = ":564"

// Server serves one Namespace to every 9P client.
type Server struct {
	ns     *Namespace
	addr   string
	logger zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New builds the status tree over snapshot. Each read renders a fresh
// snapshot.
func New(addr string, snapshot func() supervisor.Snapshot, logger zerolog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ns := NewNamespace("wlanboot", "wlanboot", 0o555)
	for _, f := range statusFiles(snapshot) {
		// names are unique and the root always exists
		_ = ns.AddFile("/", f.name, 0o444, f.file)
	}
	return &Server{
		ns:     ns,
		addr:   addr,
		logger: logger.With().Str("component", "statusfs").Logger(),
	}
}

func (s *Server) Namespace() *Namespace {
	return s.ns
}

// Addr is the bound address while serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run is a supervisor.Task. It serves until ctx is done; readiness does not
// gate it.
func (s *Server) Run(ctx context.Context, _ *supervisor.Event) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("statusfs listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts 9P sessions on ln until ctx is done, which also closes the
// open sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving status namespace")

	var (
		connMu sync.Mutex
		conns  = make(map[net.Conn]struct{})
	)
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		connMu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		connMu.Unlock()
	})
	defer stop()
	defer func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("statusfs accept: %w", err)
		}
		connMu.Lock()
		conns[c] = struct{}{}
		connMu.Unlock()

		go func() {
			defer func() {
				connMu.Lock()
				delete(conns, c)
				connMu.Unlock()
				_ = c.Close()
			}()
			s.logger.Debug().Str("remote", c.RemoteAddr().String()).Msg("9P session started")
			srv := ninep.NewSrv(func() ninep.FS { return s.ns })
			srv.ServeIO(c, c)
		}()
	}
}

type statusFile struct {
	name string
	file File
}

func statusFiles(snapshot func() supervisor.Snapshot) []statusFile {
	line := func(render func(supervisor.Snapshot) string) File {
		return FuncFile(func() ([]byte, error) {
			return []byte(render(snapshot()) + "\n"), nil
		})
	}
	return []statusFile{
		{"mode", line(func(s supervisor.Snapshot) string {
			if s.ModeName == "" {
				return "none"
			}
			return s.ModeName
		})},
		{"connected", line(func(s supervisor.Snapshot) string { return strconv.FormatBool(s.Connected) })},
		{"ready", line(func(s supervisor.Snapshot) string { return strconv.FormatBool(s.Ready) })},
		{"ip", line(func(s supervisor.Snapshot) string { return s.IfConfig.IP })},
		{"gateway", line(func(s supervisor.Snapshot) string { return s.IfConfig.Gateway })},
		{"clock", line(renderClock)},
		{"provisioning", line(func(s supervisor.Snapshot) string {
			return fmt.Sprintf("%t %d", s.Provisioning, s.ProvisioningCycles)
		})},
		{"status.json", FuncFile(func() ([]byte, error) {
			b, err := json.MarshalIndent(snapshot(), "", "  ")
			if err != nil {
				return nil, err
			}
			return append(b, '\n'), nil
		})},
	}
}

func renderClock(s supervisor.Snapshot) string {
	if !s.ClockSynced {
		return "unsynced"
	}
	return "synced " + s.ClockSyncedAt.UTC().Format(time.RFC3339)
}
