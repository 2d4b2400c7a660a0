// Package pipe reads raw DMS report files: delimited text in one of a small
// fixed set of encodings, possibly preceded by banner lines.
package pipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrDecode means no candidate encoding could decode the file.
var ErrDecode = errors.New("decode failed")

// Encoding names accepted in Options.Encodings.
const (
	UTF8        = "utf-8"
	UTF16       = "utf-16"
	ISO88591    = "iso-8859-1"
	Windows1252 = "windows-1252"
)

// DefaultEncodings is the fixed candidate order.
var DefaultEncodings = []string{UTF8, UTF16, ISO88591, Windows1252}

// Options controls Load.
type Options struct {
	// Encodings are tried in order. Empty means DefaultEncodings.
	Encodings []string
	// Delimiter separates fields; used by banner stripping and HTML flattening.
	Delimiter string
}

// Decoded is a successfully decoded report file.
type Decoded struct {
	Text     string
	Encoding string
	// FromHTML is set when the file was an HTML table export.
	FromHTML bool
}

// Load reads path, decodes it with the first encoding that accepts every
// byte, flattens HTML table exports and strips leading banner lines.
//
// Errors:
//   - I/O errors are returned wrapped (not ErrDecode).
//   - ErrDecode when every candidate rejects the content.
func Load(path string, opt Options) (Decoded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("pipe: read %s: %w", path, err)
	}
	d, err := Decode(raw, opt.Encodings)
	if err != nil {
		return Decoded{}, fmt.Errorf("pipe: %s: %w", path, err)
	}

	delim := opt.Delimiter
	if delim == "" {
		delim = "|"
	}
	if looksLikeHTMLTable(d.Text) {
		flat, err := FlattenHTMLTable(d.Text, delim)
		if err != nil {
			return Decoded{}, fmt.Errorf("pipe: %s: html export: %w", path, err)
		}
		d.Text, d.FromHTML = flat, true
	}
	d.Text = StripBanner(d.Text, delim)
	return d, nil
}

// Decode tries each named encoding in order and returns the first success.
func Decode(raw []byte, names []string) (Decoded, error) {
	if len(names) == 0 {
		names = DefaultEncodings
	}
	var tried []string
	for _, n := range names {
		name := canonicalName(n)
		text, ok := decodeAs(raw, name)
		if ok {
			return Decoded{Text: text, Encoding: name}, nil
		}
		tried = append(tried, name)
	}
	return Decoded{}, fmt.Errorf("%w: tried %s", ErrDecode, strings.Join(tried, ", "))
}

func canonicalName(n string) string {
	switch strings.ToLower(strings.TrimSpace(n)) {
	case "utf8", "utf-8":
		return UTF8
	case "utf16", "utf-16":
		return UTF16
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return ISO88591
	case "cp1252", "windows-1252":
		return Windows1252
	}
	return strings.ToLower(n)
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeAs applies one strict decoder. Permissive single-byte charsets are
// made strict by rejecting bytes the code page leaves undefined.
func decodeAs(raw []byte, name string) (string, bool) {
	switch name {
	case UTF8:
		b := bytes.TrimPrefix(raw, bomUTF8)
		if !utf8.Valid(b) {
			return "", false
		}
		return string(b), true

	case UTF16:
		if !bytes.HasPrefix(raw, bomUTF16LE) && !bytes.HasPrefix(raw, bomUTF16BE) {
			return "", false
		}
		if len(raw)%2 != 0 {
			return "", false
		}
		return transformStrict(raw, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))

	case ISO88591:
		for _, c := range raw {
			if c >= 0x80 && c <= 0x9F {
				return "", false
			}
		}
		return transformStrict(raw, charmap.ISO8859_1)

	case Windows1252:
		for _, c := range raw {
			switch c {
			case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
				return "", false
			}
		}
		return transformStrict(raw, charmap.Windows1252)
	}
	return "", false
}

func transformStrict(raw []byte, enc encoding.Encoding) (string, bool) {
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// Encode renders text in the named encoding. UTF-16 output carries a
// little-endian BOM.
func Encode(text, name string) ([]byte, error) {
	var enc encoding.Encoding
	switch canonicalName(name) {
	case UTF8:
		return []byte(text), nil
	case UTF16:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case ISO88591:
		enc = charmap.ISO8859_1
	case Windows1252:
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("pipe: unknown encoding %q", name)
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("pipe: encode %s: %w", name, err)
	}
	return out, nil
}

// StripBanner returns text starting at the first line that contains delim.
// Text with no such line yields "".
func StripBanner(text, delim string) string {
	if delim == "" {
		return text
	}
	pos := 0
	for pos < len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		line := text[pos:]
		if end >= 0 {
			line = text[pos : pos+end]
		}
		if strings.Contains(line, delim) {
			return text[pos:]
		}
		if end < 0 {
			break
		}
		pos += end + 1
	}
	return ""
}
