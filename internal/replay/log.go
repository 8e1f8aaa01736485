// Package replay records telemetry datagrams to a text log and plays them
// back with their original timing.
//
// Log format, one record per line:
//
//	# comment         ignored, as are blank lines
//	START             resets the time origin to 0
//	<t_ns>,<hex>      datagram bytes received t_ns after START
package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"raspifpv/internal/wire"
)

// Record is one log line. A nil Datagram marks START.
type Record struct {
	At       time.Duration
	Datagram []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadAll parses every record. Datagrams must decode as telemetry samples.
func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	tsStr, hexStr, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, fmt.Errorf("missing comma: %q", line)
	}
	tsStr = strings.TrimSpace(tsStr)
	hexStr = strings.ReplaceAll(strings.TrimSpace(hexStr), " ", "")
	if tsStr == "" || hexStr == "" {
		return Record{}, fmt.Errorf("empty field: %q", line)
	}

	ns, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("timestamp %q: %w", tsStr, err)
	}
	if ns < 0 {
		return Record{}, fmt.Errorf("negative timestamp %d", ns)
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Record{}, fmt.Errorf("hex payload: %w", err)
	}
	if _, err := wire.Decode(b); err != nil {
		return Record{}, err
	}
	return Record{At: time.Duration(ns), Datagram: b}, nil
}

// ReadFile opens path and parses it.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer appends records to a log file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// CreateWriter truncates path and writes the START marker.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WriteDatagram(now time.Time, b []byte) error {
	if len(b) == 0 {
		return errors.New("datagram is empty")
	}
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	d := max(now.Sub(ww.start), 0)
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(b))
	return err
}

// WriteSample records s in its wire encoding.
func (ww *Writer) WriteSample(now time.Time, s wire.Sample) error {
	return ww.WriteDatagram(now, wire.Encode(s))
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}
