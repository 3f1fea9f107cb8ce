package mudconn

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// lookupCharset returns the encoding for a charset name. UTF-8 returns nil:
// bytes pass through untouched.
func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-") {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "cp437", "ibm437":
		return charmap.CodePage437, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	}
	return nil, fmt.Errorf("mudconn: unsupported charset %q", name)
}

// ValidCharset reports whether name is a supported charset.
func ValidCharset(name string) bool {
	_, err := lookupCharset(name)
	return err == nil
}

func decodeText(enc encoding.Encoding, b []byte) string {
	if enc == nil {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func encodeText(enc encoding.Encoding, s string) []byte {
	if enc == nil {
		return []byte(s)
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
