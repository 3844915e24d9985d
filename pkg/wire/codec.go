package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
)

// MaxFrameSize caps a single framed message.
const MaxFrameSize = 16 * 1024 * 1024

const frameHeaderSize = 4

var json = jsoniter.ConfigFastest

// EncodeAll/DecodeAll are safe for concurrent use, so one pair serves every codec.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("wire: unable to create zstd encoder: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("wire: unable to create zstd decoder: " + err.Error())
	}
}

// Options selects the framing of a connection. Both ends must agree.
type Options struct {
	Framed     bool // 4-byte big endian length prefix per message, otherwise one JSON document per line
	Compressed bool // zstd compress frame payloads, ignored when not Framed
}

type codec struct {
	reader  *bufio.Reader
	writer  io.Writer
	options Options
}

func newCodec(rw io.ReadWriter, options Options) *codec {
	return &codec{
		reader:  bufio.NewReader(rw),
		writer:  rw,
		options: options,
	}
}

func (c *codec) write(v interface{}) error {

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if !c.options.Framed {
		if len(data)+1 > MaxFrameSize {
			return ErrFrameTooLarge
		}

		_, err = c.writer.Write(append(data, '\n'))
		return err
	}

	if c.options.Compressed {
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
	}

	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	frame = append(frame, data...)

	_, err = c.writer.Write(frame)
	return err
}

func (c *codec) read(v interface{}) error {

	if !c.options.Framed {
		line, err := c.readLine()
		if err != nil {
			return err
		}

		return json.Unmarshal(line, v)
	}

	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header)
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return err
	}

	if c.options.Compressed {
		var err error
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return err
		}
	}

	return json.Unmarshal(data, v)
}

// readLine reads one newline terminated message, giving up past MaxFrameSize.
func (c *codec) readLine() ([]byte, error) {

	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if len(line)+len(chunk) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}

		line = append(line, chunk...)
		if err == nil {
			return line, nil
		}

		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}
