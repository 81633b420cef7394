// ABOUTME: Canonical JSON encoder used as the input to every fingerprint.
// ABOUTME: Sorted keys, exact decimal numbers, NFC strings and UTC timestamps.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/harperreed/health-ingest/internal/models"
)

// Canonical writes the canonical form of v to w. Semantically equal values
// produce identical bytes: map keys are sorted, numbers are rendered from
// their exact decimal value (so 70, 70.0 and 7e1 agree), strings are NFC
// normalized and timestamp strings are re-rendered in UTC.
func Canonical(w io.Writer, v any) error {
	switch val := v.(type) {
	case nil:
		_, err := io.WriteString(w, "null")
		return err
	case bool:
		if val {
			_, err := io.WriteString(w, "true")
			return err
		}
		_, err := io.WriteString(w, "false")
		return err
	case string:
		return writeString(w, val)
	case time.Time:
		return writeString(w, val.UTC().Format(time.RFC3339Nano))
	case json.Number:
		return writeNumber(w, string(val))
	case float64:
		return writeFloat(w, val)
	case float32:
		return writeFloat(w, float64(val))
	case int:
		return writeNumber(w, strconv.Itoa(val))
	case int64:
		return writeNumber(w, strconv.FormatInt(val, 10))
	case models.Entry:
		return writeObject(w, val)
	case map[string]any:
		return writeObject(w, val)
	case []models.Entry:
		return writeArray(w, len(val), func(i int) any { return val[i] })
	case []any:
		return writeArray(w, len(val), func(i int) any { return val[i] })
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
}

func writeFloat(w io.Writer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite number %v", f)
	}
	return writeNumber(w, strconv.FormatFloat(f, 'g', -1, 64))
}

var numberSyntax = regexp.MustCompile(`^(-?)(0|[1-9][0-9]*)(?:\.([0-9]+))?(?:[eE]([+-]?[0-9]+))?$`)

// plainExponentLimit bounds the exponents rendered without an "e" part.
const plainExponentLimit = 20

// writeNumber renders a JSON number literal as its normalized decimal
// value: no leading or trailing zeros in the significand, no -0, and an
// exponent only outside +/-plainExponentLimit. No precision is lost, so
// distinct values never share a form.
func writeNumber(w io.Writer, lit string) error {
	m := numberSyntax.FindStringSubmatch(lit)
	if m == nil {
		return fmt.Errorf("canonical: invalid number %q", lit)
	}
	neg, intPart, frac, expPart := m[1] == "-", m[2], m[3], m[4]

	digits := strings.TrimLeft(intPart+frac, "0")
	if digits == "" {
		_, err := io.WriteString(w, "0")
		return err
	}
	exp := new(big.Int)
	if expPart != "" {
		exp.SetString(strings.TrimPrefix(expPart, "+"), 10)
	}
	exp.Sub(exp, big.NewInt(int64(len(frac))))
	trimmed := strings.TrimRight(digits, "0")
	exp.Add(exp, big.NewInt(int64(len(digits)-len(trimmed))))
	digits = trimmed

	var out string
	switch {
	case !exp.IsInt64() || exp.Int64() > plainExponentLimit || exp.Int64() < -plainExponentLimit:
		out = digits + "e" + exp.String()
	case exp.Int64() >= 0:
		out = digits + strings.Repeat("0", int(exp.Int64()))
	default:
		point := len(digits) + int(exp.Int64())
		if point > 0 {
			out = digits[:point] + "." + digits[point:]
		} else {
			out = "0." + strings.Repeat("0", -point) + digits
		}
	}
	if neg {
		out = "-" + out
	}
	_, err := io.WriteString(w, out)
	return err
}

func writeString(w io.Writer, s string) error {
	s = norm.NFC.String(s)
	if t, err := models.ParseTime(s); err == nil {
		s = t.Format(time.RFC3339Nano)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}

func writeObject(w io.Writer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for i, k := range keys {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := writeString(w, k); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ":"); err != nil {
			return err
		}
		if err := Canonical(w, m[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	_, err := io.WriteString(w, "}")
	return err
}

func writeArray(w io.Writer, n int, at func(int) any) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := Canonical(w, at(i)); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}
