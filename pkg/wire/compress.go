package wire

import (
	"github.com/klauspost/compress/zstd"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

const (
	// HeaderCompression names the body compression of a message.
	HeaderCompression = "Compression"

	// CompressionZstd is the only supported compression.
	CompressionZstd = "zstd"
)

// Compress returns a derived message whose body is zstd compressed.
func Compress(m *message.Message, level zstd.EncoderLevel) (*message.Message, error) {
	body, err := m.ReadBody()
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidOperation, "wire.Compress", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, "wire.Compress", err)
	}
	defer enc.Close()

	out := m.Derive(message.BytesBody(enc.EncodeAll(body, nil)))
	if err := out.SetHeader(message.Header{Name: HeaderCompression, Value: CompressionZstd}); err != nil {
		return nil, err
	}
	return out, nil
}

// Decompress reverses Compress. Messages without the header pass through.
func Decompress(m *message.Message) (*message.Message, error) {
	algo, ok := m.Headers().Get(HeaderCompression)
	if !ok {
		return m, nil
	}
	if algo != CompressionZstd {
		return nil, fault.New(fault.KindProtocol, "wire.Decompress", "unsupported compression %q", algo)
	}
	body, err := m.ReadBody()
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidOperation, "wire.Decompress", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, "wire.Decompress", err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "wire.Decompress", err)
	}
	out := m.Derive(message.BytesBody(plain))
	if err := out.RemoveHeader(HeaderCompression); err != nil {
		return nil, err
	}
	return out, nil
}
