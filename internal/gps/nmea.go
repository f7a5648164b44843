package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const knotsToMps = 0.514444

// Decoder accumulates NMEA 0183 sentences and assembles complete fixes.
// RMC carries position/speed/course/date, GGA carries altitude and HDOP;
// a fix is emitted on each RMC using the most recent GGA data.
type Decoder struct {
	altitude float64
	hdop     float64
	hasGGA   bool
}

// ErrIncomplete is returned by Decode for sentences that were consumed
// but do not yet complete a fix (e.g. GGA, or unsupported talkers).
var ErrIncomplete = fmt.Errorf("sentence consumed, fix incomplete")

// Decode parses one NMEA sentence. On an RMC sentence it returns the
// assembled fix; otherwise it returns ErrIncomplete. Malformed sentences
// and checksum failures return a descriptive error.
func (d *Decoder) Decode(line string) (Point, error) {
	line = strings.TrimSpace(line)
	if len(line) < 7 || line[0] != '$' {
		return Point{}, fmt.Errorf("not an NMEA sentence: %q", line)
	}

	body, err := verifyChecksum(line)
	if err != nil {
		return Point{}, err
	}

	fields := strings.Split(body, ",")
	talker := fields[0]
	switch {
	case strings.HasSuffix(talker, "RMC"):
		return d.decodeRMC(fields)
	case strings.HasSuffix(talker, "GGA"):
		if err := d.decodeGGA(fields); err != nil {
			return Point{}, err
		}
		return Point{}, ErrIncomplete
	default:
		return Point{}, ErrIncomplete
	}
}

// verifyChecksum validates the *hh trailer and returns the sentence body
// without the leading $ and the checksum.
func verifyChecksum(line string) (string, error) {
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 > len(line) {
		return "", fmt.Errorf("missing checksum: %q", line)
	}
	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return "", fmt.Errorf("bad checksum field: %q", line)
	}
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	if sum != byte(want) {
		return "", fmt.Errorf("checksum mismatch: got %02X, want %02X", sum, want)
	}
	return body, nil
}

// decodeRMC parses a Recommended Minimum sentence:
// $GPRMC,hhmmss.ss,A,lat,N,lon,E,speed_knots,course,ddmmyy,...
func (d *Decoder) decodeRMC(fields []string) (Point, error) {
	if len(fields) < 10 {
		return Point{}, fmt.Errorf("short RMC sentence: %d fields", len(fields))
	}

	p := Point{HasFix: fields[2] == "A"}
	if !p.HasFix {
		return p, nil
	}

	ts, err := parseNMEATime(fields[9], fields[1])
	if err != nil {
		return Point{}, err
	}
	p.Timestamp = ts

	if p.Lat, err = parseCoordinate(fields[3], fields[4]); err != nil {
		return Point{}, err
	}
	if p.Lon, err = parseCoordinate(fields[5], fields[6]); err != nil {
		return Point{}, err
	}

	if fields[7] != "" {
		knots, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			return Point{}, fmt.Errorf("bad speed %q: %w", fields[7], err)
		}
		p.SpeedMps = knots * knotsToMps
	}
	if fields[8] != "" {
		if p.HeadingDeg, err = strconv.ParseFloat(fields[8], 64); err != nil {
			return Point{}, fmt.Errorf("bad course %q: %w", fields[8], err)
		}
	}

	if d.hasGGA {
		p.Altitude = d.altitude
		// Rough horizontal error: HDOP × nominal 2.5m UERE.
		p.Accuracy = d.hdop * 2.5
	}
	return p, nil
}

// decodeGGA records altitude and HDOP from a Fix Data sentence:
// $GPGGA,hhmmss.ss,lat,N,lon,E,quality,sats,hdop,alt,M,...
func (d *Decoder) decodeGGA(fields []string) error {
	if len(fields) < 10 {
		return fmt.Errorf("short GGA sentence: %d fields", len(fields))
	}
	if fields[8] != "" {
		hdop, err := strconv.ParseFloat(fields[8], 64)
		if err != nil {
			return fmt.Errorf("bad HDOP %q: %w", fields[8], err)
		}
		d.hdop = hdop
	}
	if fields[9] != "" {
		alt, err := strconv.ParseFloat(fields[9], 64)
		if err != nil {
			return fmt.Errorf("bad altitude %q: %w", fields[9], err)
		}
		d.altitude = alt
	}
	d.hasGGA = true
	return nil
}

// parseCoordinate converts ddmm.mmmm / dddmm.mmmm plus hemisphere into
// signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degrees, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate degrees %q: %w", value, err)
	}
	minutes, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate minutes %q: %w", value, err)
	}
	deg := degrees + minutes/60
	switch hemisphere {
	case "S", "W":
		deg = -deg
	case "N", "E":
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemisphere)
	}
	return deg, nil
}

// parseNMEATime combines the ddmmyy date field and hhmmss.ss time field
// into a UTC timestamp.
func parseNMEATime(date, clock string) (time.Time, error) {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, fmt.Errorf("malformed date/time %q %q", date, clock)
	}
	day, err1 := strconv.Atoi(date[0:2])
	month, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(clock[0:2])
	minute, err5 := strconv.Atoi(clock[2:4])
	sec, err6 := strconv.ParseFloat(clock[4:], 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed date/time %q %q: %w", date, clock, err)
		}
	}
	nanos := int((sec - float64(int(sec))) * 1e9)
	return time.Date(2000+year, time.Month(month), day, hour, minute, int(sec), nanos, time.UTC), nil
}
