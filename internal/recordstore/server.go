package recordstore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/record"
)

type database interface {
	SaveOSInfo(ctx context.Context, endpointID string, scanID *int64, fields []*string) error
	SaveHardware(ctx context.Context, endpointID string, scanID *int64, fields []*string) error
	SavePrograms(ctx context.Context, endpointID string, scanID *int64, fields []*string) error
	DeletePrograms(ctx context.Context, endpointID string, scanID int64) error
}

// Server applies the commands received on a unix socket to the database.
type Server struct {
	db       database
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Listen creates the socket at path, replacing any stale one, and returns a Server accepting connections on it.
func Listen(path string, db database) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not remove stale socket %q: %v", path, err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %q: %v", path, err)
	}
	if err := os.Chmod(path, 0660); err != nil {
		l.Close()
		return nil, fmt.Errorf("could not set permissions of %q: %v", path, err)
	}

	return &Server{
		db:       db,
		listener: l,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the path of the socket.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled, then closes every connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()
	defer s.wg.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("could not accept connection: %v", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		if ctx.Err() != nil {
			conn.Close()
		}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handle(ctx, conn)
		}()
	}
}

// handle executes the commands of a connection, in order, until the peer closes it.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	slog.Debug("New record store connection")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), constants.MaxCommandSize)
	scanner.Split(splitCommands)

	for scanner.Scan() {
		reply, ok := s.execute(ctx, scanner.Text())
		if !ok {
			continue
		}
		if _, err := conn.Write(append([]byte(reply), constants.CommandTerminator)); err != nil {
			slog.Warn("Could not answer record store client", "err", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("Closing record store connection", "err", err)
	}
}

// execute runs one command. It returns the reply to send, if the sender awaits one.
func (s *Server) execute(ctx context.Context, line string) (reply string, awaited bool) {
	cmd, err := ParseCommand(line)
	awaited = cmd.AwaitsReply()
	if err != nil {
		slog.Warn("Invalid record store command", "command", line, "err", err)
		return "err " + err.Error(), awaited
	}

	switch {
	case cmd.Verb == VerbDelete:
		err = s.db.DeletePrograms(ctx, cmd.EndpointID, *cmd.ScanID)
	case cmd.Entity == record.OSInfo:
		err = s.db.SaveOSInfo(ctx, cmd.EndpointID, cmd.ScanID, cmd.Fields)
	case cmd.Entity == record.Hardware:
		err = s.db.SaveHardware(ctx, cmd.EndpointID, cmd.ScanID, cmd.Fields)
	case cmd.Entity == record.Program:
		err = s.db.SavePrograms(ctx, cmd.EndpointID, cmd.ScanID, cmd.Fields)
	}
	if err != nil {
		slog.Error("Could not save record", "endpoint", cmd.EndpointID, "entity", cmd.Entity, "verb", cmd.Verb, "err", err)
		return "err " + err.Error(), awaited
	}

	slog.Debug("Record saved", "endpoint", cmd.EndpointID, "entity", cmd.Entity, "verb", cmd.Verb)
	return constants.ResponseOK, awaited
}

// splitCommands is a bufio.SplitFunc cutting the stream on the command terminator.
// An unterminated command left when the peer closes the connection is dropped.
func splitCommands(data []byte, _ bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, constants.CommandTerminator); i >= 0 {
		return i + 1, data[:i], nil
	}
	return 0, nil, nil
}
