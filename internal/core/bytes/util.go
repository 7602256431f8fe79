package bytes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ConvertToUtf16 converts a UTF-8 string to UTF-16 LE and return it as an array of bytes.
func ConvertToUtf16(str string) []byte {
	encoded, err := utf16le.NewEncoder().String(str)
	if err != nil {
		// The encoder replaces invalid sequences instead of failing.
		return []byte{}
	}
	return []byte(encoded)
}

// DecodeUtf16 converts UTF-16 LE bytes back into a string, stopping at the
// first NUL code unit. A trailing odd byte is ignored.
func DecodeUtf16(b []byte) string {
	end := len(b) &^ 1
	for i := 0; i+1 < end; i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			end = i
			break
		}
	}
	decoded, err := utf16le.NewDecoder().Bytes(b[:end])
	if err != nil {
		return ""
	}
	return string(decoded)
}

// CopyUtf16 writes s into the fixed-capacity buffer dst, truncating it so
// that a terminating NUL always fits. Returns the number of code units copied.
func CopyUtf16(dst []uint16, s string) int {
	if len(dst) == 0 {
		return 0
	}
	n := copy(dst, TruncateUtf16(utf16.Encode([]rune(s)), len(dst)-1))
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

// TruncateUtf16 shortens units to at most n code units. A high surrogate left
// at the cut is dropped along with its low half.
func TruncateUtf16(units []uint16, n int) []uint16 {
	if len(units) <= n {
		return units
	}
	if n > 0 && units[n-1] >= 0xd800 && units[n-1] < 0xdc00 {
		n--
	}
	return units[:n]
}

// Utf16ToString reads a NUL terminated string out of a fixed-capacity buffer.
func Utf16ToString(src []uint16) string {
	for i, v := range src {
		if v == 0 {
			return string(utf16.Decode(src[:i]))
		}
	}
	return string(utf16.Decode(src))
}

// StripPadding returns a slice of b without the trailing 0s.
func StripPadding(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return b[:i+1]
		}
	}
	return []byte{}
}

// BytesFromStruct serializes the fields of a struct to an array of bytes in the
// order in which the fields are declared and returns total number of bytes converted.
// Panics if data is not a struct or pointer to struct, or if there was an error writing a field.
func BytesFromStruct(data interface{}) ([]byte, int) {
	val := reflect.ValueOf(data)
	valKind := val.Kind()

	if valKind == reflect.Ptr {
		val = reflect.ValueOf(data).Elem()
		valKind = val.Kind()
	}

	if valKind != reflect.Struct {
		panic("BytesFromStruct(): data must of type struct " +
			"or ptr to struct, got: " + valKind.String())
	}

	convertedBytes := new(bytes.Buffer)
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)

		var err error
		switch kind := field.Kind(); kind {
		case reflect.Struct, reflect.Ptr:
			b, _ := BytesFromStruct(field.Interface())
			err = binary.Write(convertedBytes, binary.LittleEndian, b)
		case reflect.Bool:
			var v uint8
			if field.Bool() {
				v = 1
			}
			err = convertedBytes.WriteByte(v)
		default:
			err = binary.Write(convertedBytes, binary.LittleEndian, field.Interface())
		}
		if err != nil {
			panic(err.Error())
		}
	}
	return convertedBytes.Bytes(), convertedBytes.Len()
}

// StructFromBytes populates the struct pointed to by targetStruct by reading in a
// stream of bytes and filling the values in sequential order. Input shorter than
// the struct is reported as an error rather than partially applied.
func StructFromBytes(data []byte, targetStruct interface{}) error {
	targetVal := reflect.ValueOf(targetStruct)

	if valKind := targetVal.Kind(); valKind != reflect.Ptr || targetVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("StructFromBytes(): targetStruct must be a ptr to struct, got: %s", valKind)
	}
	if size := binary.Size(targetStruct); size < 0 || len(data) < size {
		return fmt.Errorf("StructFromBytes(): need %d bytes, got %d", size, len(data))
	}

	reader := bytes.NewReader(data)
	val := targetVal.Elem()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if err := binary.Read(reader, binary.LittleEndian, field.Addr().Interface()); err != nil {
			return fmt.Errorf("StructFromBytes(): reading field %s: %w", val.Type().Field(i).Name, err)
		}
	}
	return nil
}
