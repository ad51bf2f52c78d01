package siem

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
)

// tcpIdleTimeout bounds how long a TCP shipment may sit without
// progress before it is treated as a hard failure.
const tcpIdleTimeout = 10 * time.Second

// Syslogger delivers event batches as RFC 5424-flavored lines over TCP
// or UDP.
type Syslogger struct {
	hostname string
	pid      int
}

// NewSyslogger creates a syslog adapter stamped with the local host
// name and process ID.
func NewSyslogger() *Syslogger {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return &Syslogger{hostname: hostname, pid: os.Getpid()}
}

// Ship frames every event in the batch and sends the lines to the
// endpoint. Missing host/port or an unknown protocol are configuration
// errors surfaced on the first attempt.
func (s *Syslogger) Ship(ctx context.Context, endpoint models.SIEMEndpoint, events []models.AuditEvent) error {
	if endpoint.Host == "" || endpoint.Port == 0 {
		return fmt.Errorf("syslog endpoint %q is missing host or port", endpoint.ID)
	}

	lines := make([]string, len(events))
	for i, event := range events {
		lines[i] = s.Frame(event)
	}

	addr := net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
	switch endpoint.Protocol {
	case "udp":
		return s.shipUDP(addr, lines)
	case "tcp":
		return s.shipTCP(addr, lines)
	default:
		return fmt.Errorf("syslog endpoint %q has unknown protocol %q", endpoint.ID, endpoint.Protocol)
	}
}

// Frame renders a single event as one RFC 5424-flavored line:
//
//	<PRI>1 TIME HOST audit PID ACTIVITY [ocsf@1 ...] MESSAGE
//
// PRI is facility*8 + the syslog severity mapped from the OCSF
// severity. The structured-data block carries the numeric OCSF codes
// a collector needs to reconstruct the event taxonomy.
func (s *Syslogger) Frame(event models.AuditEvent) string {
	return fmt.Sprintf("<%d>1 %s %s audit %d %s [ocsf@1 class_uid=%q activity_id=%q category=%q severity=%q status=%q] %s",
		event.Severity.SyslogPriority(),
		event.Timestamp().Format(time.RFC3339),
		s.hostname,
		s.pid,
		strings.ToUpper(event.ActivityName),
		strconv.Itoa(event.ClassUID),
		strconv.Itoa(event.Activity.ID()),
		event.CategoryName,
		event.SeverityName,
		event.StatusName,
		event.Message,
	)
}

// shipUDP sends each framed line as one independent datagram. Every
// line is attempted even after a failure; the first error is reported
// once the whole batch has been tried.
func (s *Syslogger) shipUDP(addr string, lines []string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	var firstErr error
	for _, line := range lines {
		if _, err := conn.Write([]byte(line)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// shipTCP opens one connection, writes all lines newline-terminated,
// half-closes the write side, and waits for the peer to close. The
// idle timeout is a hard failure.
func (s *Syslogger) shipTCP(addr string, lines []string) error {
	conn, err := net.DialTimeout("tcp", addr, tcpIdleTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(tcpIdleTimeout)); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return err
		}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return err
		}
	}
	// Resolve on peer close; a deadline hit surfaces as an error here.
	if _, err := io.Copy(io.Discard, conn); err != nil {
		return err
	}
	return nil
}
