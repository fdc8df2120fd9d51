package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hls-gateway/internal/assets"
)

// ChunkSize is the write granularity of range streaming.
const ChunkSize = 8 << 10

// ByteRange is an inclusive byte interval.
type ByteRange struct {
	Start, End int64
	Size       int64
}

// Length is the number of bytes in the range.
func (b ByteRange) Length() int64 { return b.End - b.Start + 1 }

// ContentRange renders the Content-Range header value.
func (b ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", b.Start, b.End, b.Size)
}

// ParseRange interprets header against a file of size bytes. An empty
// header selects the whole file. Only a single "bytes=start-end" range is
// accepted; end may be omitted to mean end of file.
func ParseRange(header string, size int64) (ByteRange, error) {
	bad := &RangeError{Header: header, Size: size}
	if size <= 0 {
		return ByteRange{}, bad
	}
	if header == "" {
		return ByteRange{Start: 0, End: size - 1, Size: size}, nil
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return ByteRange{}, bad
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, bad
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, bad
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return ByteRange{}, bad
		}
	}
	if start > end || end >= size {
		return ByteRange{}, bad
	}
	return ByteRange{Start: start, End: end, Size: size}, nil
}

// StreamRange writes rng of obj to w in ChunkSize pieces, flushing after
// each one. It stops at the first write error or when ctx is done, and
// always closes obj. It returns the number of bytes written.
func StreamRange(ctx context.Context, w io.Writer, obj io.ReadSeekCloser, rng ByteRange) (int64, error) {
	defer obj.Close()

	if _, err := obj.Seek(rng.Start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %d: %w", rng.Start, err)
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, ChunkSize)
	remaining := rng.Length()
	var written int64

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, rerr := io.ReadFull(obj, buf[:n])
		if read > 0 {
			wn, werr := w.Write(buf[:read])
			written += int64(wn)
			remaining -= int64(wn)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.ErrUnexpectedEOF) || errors.Is(rerr, io.EOF) {
				return written, io.ErrUnexpectedEOF
			}
			return written, rerr
		}
	}
	return written, nil
}

// openVideo resolves key in st and parses the request's range against it.
// On a range error the object is closed.
func openVideo(ctx context.Context, st assets.Store, key, rangeHeader string) (assets.Object, ByteRange, error) {
	obj, err := st.Open(ctx, key)
	if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrInvalidKey) {
		return nil, ByteRange{}, fmt.Errorf("video %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, ByteRange{}, fmt.Errorf("open %s: %w", key, err)
	}
	rng, err := ParseRange(rangeHeader, obj.Size())
	if err != nil {
		obj.Close()
		return nil, ByteRange{}, err
	}
	return obj, rng, nil
}
