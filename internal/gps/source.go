package gps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/apex.report/internal/monitoring"
	"github.com/banshee-data/apex.report/internal/snapshot"
)

// Source is a GPS fix producer. Run publishes fixes into the queue until
// the context is cancelled; it is the acquisition worker's loop body.
// Which implementation is used is resolved once at startup; there is no
// runtime probing for hardware.
type Source interface {
	Run(ctx context.Context, out *snapshot.Queue[Point]) error
	Close() error
}

// SerialSource reads NMEA sentences from a serial GPS receiver.
type SerialSource struct {
	port    serial.Port
	decoder Decoder
}

// OpenSerialSource opens the receiver at the given device path.
// Consumer-grade GPS modules default to 9600 baud; pass 0 to use that.
func OpenSerialSource(device string, baud int) (*SerialSource, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS serial port %s: %w", device, err)
	}
	return &SerialSource{port: port}, nil
}

// Run reads sentences until the context is cancelled. Parse failures are
// logged and skipped; a single bad sentence must never stop acquisition.
func (s *SerialSource) Run(ctx context.Context, out *snapshot.Queue[Point]) error {
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		fix, err := s.decoder.Decode(line)
		if errors.Is(err, ErrIncomplete) {
			continue
		}
		if err != nil {
			monitoring.Logf("gps: dropped sentence: %v", err)
			continue
		}
		out.Publish(fix)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("GPS serial read failed: %w", err)
	}
	return ctx.Err()
}

// Close closes the serial port, which also unblocks a Run in progress.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// FixtureSource replays NMEA sentences from a recorded file at a fixed
// cadence. Used in dev mode instead of real hardware.
type FixtureSource struct {
	lines    []string
	interval time.Duration
	loop     bool
}

// NewFixtureSource loads a fixture file of NMEA sentences. The interval
// is the delay between emitted fixes (the nominal receiver rate is one
// fix per 100ms).
func NewFixtureSource(path string, interval time.Duration, loop bool) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixtures file %s is empty", path)
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &FixtureSource{lines: lines, interval: interval, loop: loop}, nil
}

// Run replays the fixture fixes on the configured cadence.
func (s *FixtureSource) Run(ctx context.Context, out *snapshot.Queue[Point]) error {
	var decoder Decoder
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if i >= len(s.lines) {
			if !s.loop {
				monitoring.Logf("gps: fixture playback complete (%d sentences)", len(s.lines))
				return nil
			}
			i = 0
			decoder = Decoder{}
		}

		fix, err := decoder.Decode(s.lines[i])
		i++
		if errors.Is(err, ErrIncomplete) {
			continue
		}
		if err != nil {
			monitoring.Logf("gps: dropped fixture sentence: %v", err)
			continue
		}
		out.Publish(fix)
	}
}

// Close is a no-op for fixture playback.
func (s *FixtureSource) Close() error { return nil }
