package uds

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/zeptools/gw-certs/svc"
)

var _ svc.Service = (*Service)(nil)

// DefaultCommandTimeout bounds one admin command; they touch the job store
const DefaultCommandTimeout = 30 * time.Second

type Service struct {
	Ctx            context.Context    // Service Context
	cancel         context.CancelFunc // Service Context CancelFunc
	state          int                // internal service state
	done           chan error         // Shutdown Error Channel
	SocketPath     string
	CmdMap         map[string]CmdHnd
	CommandTimeout time.Duration
	listener       net.Listener
}

func (s *Service) Name() string {
	return "UDSService"
}

func NewService(parentCtx context.Context, sockPath string, cmdMap map[string]CmdHnd) *Service {
	svcCtx, svcCancel := context.WithCancel(parentCtx)
	return &Service{
		Ctx:            svcCtx,
		cancel:         svcCancel,
		state:          svc.StateREADY,
		done:           make(chan error, 1),
		SocketPath:     sockPath,
		CmdMap:         cmdMap,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// Start the unix socket service in the background.
// Bootstrapping errors are returned immediately.
// Runtime errors are pushed into Done().
func (s *Service) Start() error {
	if s.state != svc.StateREADY {
		return fmt.Errorf("cannot start. not ready")
	}
	// a stale socket from a crashed run blocks Listen
	_ = os.Remove(s.SocketPath)
	listener, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("listen(%q) failed: %w", s.SocketPath, err)
	}
	if err = os.Chmod(s.SocketPath, 0600); err != nil {
		_ = listener.Close()
		_ = os.Remove(s.SocketPath)
		return fmt.Errorf("chmod(%q) failed: %w", s.SocketPath, err)
	}
	s.listener = listener
	s.state = svc.StateRUNNING
	go s.run()
	return nil
}

func (s *Service) Stop() {
	if s.state != svc.StateRUNNING {
		log.Println("[ERROR][UDS] cannot stop. not running")
		return
	}
	s.cancel()
	s.state = svc.StateSTOPPED
	log.Println("[INFO][UDS] service stopped")
}

func (s *Service) Done() <-chan error {
	return s.done
}

func (s *Service) run() {
	context.AfterFunc(s.Ctx, func() {
		log.Printf("[INFO][UDS] stopping")
		if err := s.listener.Close(); err != nil {
			log.Printf("[ERROR][UDS] cannot close listener: %v", err)
		}
		if err := os.Remove(s.SocketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[ERROR][UDS] cannot remove socket file: %v", err)
		}
	})

	log.Printf("[INFO][UDS] listening on %q ...\n", s.SocketPath)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Printf("[INFO][UDS] socket closed")
				s.done <- nil
				return
			}
			log.Println("[ERROR][UDS] accept failed:", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn reads lines until one names a command, runs it and hangs up.
// "help" and unknown commands keep the connection open.
func (s *Service) handleConn(c net.Conn) {
	stop := context.AfterFunc(s.Ctx, func() { _ = c.Close() })
	defer stop()
	defer func() {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("[ERROR][UDS] closing connection: %v\n", err)
		}
	}()

	reader := bufio.NewReader(io.LimitReader(c, 1<<20))
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("[ERROR][UDS] read error: %v\n", err)
			}
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit":
			return
		case "help":
			s.writeHelp(c)
			continue
		}
		cmdHnd, ok := s.CmdMap[args[0]]
		if !ok {
			_, _ = fmt.Fprintf(c, "unknown command: %s\n", args[0])
			continue
		}
		s.dispatch(c, cmdHnd, args)
		return
	}
}

func (s *Service) dispatch(w io.Writer, cmdHnd CmdHnd, args []string) {
	ctx, cancel := context.WithTimeout(s.Ctx, s.CommandTimeout)
	defer cancel()
	line := strings.Join(args, " ")
	log.Printf("[INFO][UDS] requested command `%s`\n", line)
	if err := cmdHnd.Fn(ctx, args[1:], w); err != nil {
		log.Printf("[WARN][UDS] command `%s` failed: %v\n", line, err)
		_, _ = fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	log.Printf("[INFO][UDS] command `%s` done\n", line)
}

func (s *Service) writeHelp(w io.Writer) {
	names := make([]string, 0, len(s.CmdMap))
	for k := range s.CmdMap {
		names = append(names, k)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintln(w)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%-36s %s\n", s.CmdMap[name].Usage, s.CmdMap[name].Desc)
	}
	_, _ = fmt.Fprintf(w, "%-36s %s\n\n", "quit", "close the connection")
}
