package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadString reads up to length bytes.
func (s *Stream) ReadString(length int) (string, error) {
	if length <= 0 {
		return "", newError("read", s.name, ErrInvalid, "length must be positive, got %d", length)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(s, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || (err == io.EOF && n > 0) {
		err = nil
	}
	return string(buf[:n]), err
}

// ReadCharacter reads one byte.
func (s *Stream) ReadCharacter() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(s, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBoolean reads one byte and reports whether it is not '0'.
func (s *Stream) ReadBoolean() (bool, error) {
	c, err := s.ReadCharacter()
	if err != nil {
		return false, err
	}
	return c != '0', nil
}

// ReadInteger reads length bytes and parses them as a base 10 integer.
func (s *Stream) ReadInteger(length int) (int64, error) {
	str, err := s.ReadString(length)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(str), 10, 64)
}

// ReadFloat reads length bytes and parses them as a float.
func (s *Stream) ReadFloat(length int) (float64, error) {
	str, err := s.ReadString(length)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// ReadLine reads up to and excluding the next "\n". The last line of a
// resource may lack the terminator.
func (s *Stream) ReadLine() (string, error) {
	var line bytes.Buffer
	for {
		c, err := s.ReadCharacter()
		if err != nil {
			if (err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF)) && line.Len() > 0 {
				return line.String(), nil
			}
			return "", err
		}
		if c == '\n' {
			return strings.TrimSuffix(line.String(), "\r"), nil
		}
		line.WriteByte(c)
	}
}

// ReadAll reads until EOF.
func (s *Stream) ReadAll() ([]byte, error) {
	return io.ReadAll(s)
}

// Scanf reads one line and parses it according to format.
func (s *Stream) Scanf(format string, args ...any) (int, error) {
	line, err := s.ReadLine()
	if err != nil {
		return 0, err
	}
	return fmt.Sscanf(line, format, args...)
}

// WriteString writes str.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// WriteCharacter writes one byte.
func (s *Stream) WriteCharacter(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// WriteBoolean writes "1" or "0".
func (s *Stream) WriteBoolean(b bool) error {
	if b {
		return s.WriteCharacter('1')
	}
	return s.WriteCharacter('0')
}

// WriteInteger writes i in base 10.
func (s *Stream) WriteInteger(i int64) error {
	_, err := s.WriteString(strconv.FormatInt(i, 10))
	return err
}

// WriteFloat writes f in its shortest decimal form.
func (s *Stream) WriteFloat(f float64) error {
	_, err := s.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return err
}

// WriteLine writes line followed by "\n". Only the part of line before its
// first newline is written.
func (s *Stream) WriteLine(line string) error {
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	_, err := s.WriteString(line + "\n")
	return err
}
