// Command gps-replay replays GPS traffic captured from a receiver.
//
// It reads a pcap capture of NMEA-over-UDP traffic (or a plain NMEA
// text file) and either resends the sentences over UDP in real time,
// respecting the original packet timing, or writes them out as a
// fixture file for the main binary's -dev mode.
//
// Usage:
//
//	go run ./cmd/tools/gps-replay [flags]
//
// Flags:
//
//	-pcap    pcap capture to replay
//	-nmea    plain NMEA file to replay (alternative to -pcap)
//	-port    UDP port the capture's GPS traffic is on (default 10110)
//	-target  UDP address to resend to (empty: write sentences to stdout)
//	-speed   replay speed multiplier (1.0 = real time)
//	-loop    restart from the beginning at end of input
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	pcapFile := flag.String("pcap", "", "pcap capture to replay")
	nmeaFile := flag.String("nmea", "", "plain NMEA file to replay")
	port := flag.Int("port", 10110, "UDP port carrying NMEA traffic in the capture")
	target := flag.String("target", "", "UDP address to resend to (empty: stdout)")
	speed := flag.Float64("speed", 1.0, "replay speed multiplier")
	interval := flag.Duration("interval", 100*time.Millisecond, "sentence interval for -nmea input")
	loop := flag.Bool("loop", false, "loop at end of input")
	flag.Parse()

	if (*pcapFile == "") == (*nmeaFile == "") {
		log.Fatal("exactly one of -pcap or -nmea is required")
	}
	if *speed <= 0 {
		*speed = 1.0
	}

	var send func(string) error
	if *target != "" {
		conn, err := net.Dial("udp", *target)
		if err != nil {
			log.Fatalf("failed to dial %s: %v", *target, err)
		}
		defer conn.Close()
		send = func(sentence string) error {
			_, err := conn.Write([]byte(sentence + "\r\n"))
			return err
		}
		log.Printf("replaying to udp://%s (speed %.1fx)", *target, *speed)
	} else {
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		send = func(sentence string) error {
			_, err := fmt.Fprintln(out, sentence)
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		var err error
		if *pcapFile != "" {
			err = replayPcap(ctx, *pcapFile, *port, *speed, send)
		} else {
			err = replayNMEA(ctx, *nmeaFile, *interval, *speed, send)
		}
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Fatalf("replay failed: %v", err)
		}
		if !*loop || ctx.Err() != nil {
			return
		}
		log.Print("end of input, looping")
	}
}

// replayPcap walks the capture, extracts UDP payloads on the GPS port,
// and emits each NMEA sentence paced by the original capture timing.
func replayPcap(ctx context.Context, path string, port int, speed float64, send func(string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	var firstPacket time.Time
	replayStart := time.Now()
	packets, sentences := 0, 0

	for ctx.Err() == nil {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			// io.EOF ends the file walk.
			break
		}
		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != port && int(udp.SrcPort) != port {
			continue
		}
		packets++

		// Pace against the capture clock.
		if firstPacket.IsZero() {
			firstPacket = ci.Timestamp
		}
		offset := time.Duration(float64(ci.Timestamp.Sub(firstPacket)) / speed)
		if wait := time.Until(replayStart.Add(offset)); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, line := range strings.Split(string(udp.Payload), "\n") {
			line = strings.TrimRight(line, "\r")
			if !strings.HasPrefix(line, "$") {
				continue
			}
			if err := send(line); err != nil {
				return err
			}
			sentences++
		}
	}
	log.Printf("replayed %d sentences from %d packets", sentences, packets)
	return ctx.Err()
}

// replayNMEA emits the sentences of a plain NMEA file at a fixed
// interval, for captures that were already extracted.
func replayNMEA(ctx context.Context, path string, interval time.Duration, speed float64, send func(string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ticker := time.NewTicker(time.Duration(float64(interval) / speed))
	defer ticker.Stop()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		if err := send(line); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
