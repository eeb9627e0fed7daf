package message

import (
	"bytes"
	"encoding/xml"
	"io"
)

// BodyWriter produces the message body on demand.
type BodyWriter interface {
	WriteBody(w io.Writer) error
}

// BodyWriterFunc adapts a function to BodyWriter.
type BodyWriterFunc func(w io.Writer) error

// WriteBody calls f(w).
func (f BodyWriterFunc) WriteBody(w io.Writer) error {
	return f(w)
}

// BytesBody writes raw bytes.
type BytesBody []byte

// WriteBody writes b to w.
func (b BytesBody) WriteBody(w io.Writer) error {
	_, err := w.Write(b)
	return err
}

// StringBody writes a single text element named Element with value Text.
type StringBody struct {
	Element string
	Text    string
}

// NewStringBody returns a body holding text inside a "string" element.
func NewStringBody(text string) StringBody {
	return StringBody{Element: "string", Text: text}
}

// WriteBody writes <Element>Text</Element>.
func (b StringBody) WriteBody(w io.Writer) error {
	name := b.Element
	if name == "" {
		name = "string"
	}
	start := xml.StartElement{Name: xml.Name{Local: name}}
	enc := xml.NewEncoder(w)
	if err := enc.EncodeElement(b.Text, start); err != nil {
		return err
	}
	return enc.Flush()
}

// ReadElementString extracts the text content of the single root element in
// body. Bodies that are not element-wrapped are returned as-is.
func ReadElementString(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return string(body), nil
	}
	var v struct {
		Text string `xml:",chardata"`
	}
	if err := xml.Unmarshal(trimmed, &v); err != nil {
		return "", err
	}
	return v.Text, nil
}
