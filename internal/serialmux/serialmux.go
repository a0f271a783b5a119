// Package serialmux serves the people counter over a serial line: it answers
// counter commands, announces every count, and lets several local clients
// follow the traffic on the port.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/tracking"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html><head><title>Counter command</title></head>
<body>
<form method="POST" action="send-command-api">
<input name="command" placeholder="GET, RESET or SET in out" autofocus>
<button type="submit">Send</button>
</form>
<p>Live traffic: <a href="tail">tail</a></p>
</body></html>
`))

// Mux is the interface shared by SerialMux and DisabledSerialMux.
type Mux interface {
	// Subscribe creates a new channel receiving every line read from or
	// written to the port. The ID is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// WriteLine writes one line to the port.
	WriteLine(string) error
	// RecordCount announces a count event on the port.
	RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error
	// Monitor reads command lines from the port until ctx is done or the
	// port fails.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the port.
	Close() error
	// AttachAdminRoutes attaches debugging endpoints served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes one serial port between the command handler, count
// announcements and any number of subscribers.
type SerialMux[T SerialPorter] struct {
	port         T
	handler      *CommandHandler
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	writeMu      sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

var (
	_ Mux = (*SerialMux[SerialPorter])(nil)
	_ Mux = (*DisabledSerialMux)(nil)
)

// NewSerialMux creates a SerialMux over port. A nil handler ignores
// incoming lines apart from forwarding them to subscribers.
func NewSerialMux[T SerialPorter](port T, handler *CommandHandler) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		handler:     handler,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// slow subscriber, drop the line rather than block the port
		}
	}
}

// WriteLine writes line to the port, adding the trailing newline.
func (s *SerialMux[T]) WriteLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := io.WriteString(s.port, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	s.broadcast("> " + strings.TrimSuffix(line, "\n"))
	return nil
}

// CountLine formats the announcement of a count event.
func CountLine(ev tracking.CountEvent) string {
	dir := "OUT"
	if ev.Entered {
		dir = "IN"
	}
	return fmt.Sprintf("COUNT %s %d %d", dir, ev.In, ev.Out)
}

// RecordCount writes "COUNT <IN|OUT> <in> <out>" for ev.
func (s *SerialMux[T]) RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error {
	if err := s.WriteLine(CountLine(ev)); err != nil {
		return fmt.Errorf("announce count %s: %w", id, err)
	}
	return nil
}

// Monitor reads lines from the port, forwards them to subscribers and
// answers counter commands.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan runs in its own goroutine so the loop below can
	// still observe cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.isClosing() {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			s.broadcast("< " + line)
			if s.handler == nil {
				continue
			}
			reply, err := s.handler.Handle(ctx, line)
			if err != nil {
				monitoring.Logf("serialmux: command %q: %v", line, err)
			}
			if err := s.WriteLine(reply); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a counter command", func(w http.ResponseWriter, r *http.Request) {
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	// Runs a command as if it arrived on the port and returns the reply.
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if s.handler == nil {
			http.Error(w, "No command handler", http.StatusServiceUnavailable)
			return
		}
		reply, err := s.handler.Handle(r.Context(), command)
		if err != nil {
			http.Error(w, reply, http.StatusBadRequest)
			return
		}
		io.WriteString(w, reply)
	})

	// Server-Sent Events stream of the port traffic.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
