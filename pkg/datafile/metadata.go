package datafile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Value is one typed metadata scalar. Raw keeps the token as it appeared.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Raw   string
}

func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: v, Float: float64(v), Raw: strconv.FormatInt(v, 10)}
}

func FloatValue(v float64) Value {
	return Value{Kind: KindFloat, Float: v, Raw: strconv.FormatFloat(v, 'g', -1, 64)}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, Raw: s}
}

// ParseValue coerces a token: all digits is an int, anything float-parsable
// is a float, the rest stays a string.
func ParseValue(token string) Value {
	if isDigits(token) {
		if v, err := strconv.ParseInt(token, 10, 64); err == nil {
			return Value{Kind: KindInt, Int: v, Float: float64(v), Raw: token}
		}
	}
	if v, err := strconv.ParseFloat(token, 64); err == nil {
		return Value{Kind: KindFloat, Float: v, Raw: token}
	}
	return StringValue(token)
}

func (v Value) String() string {
	return v.Raw
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Metadata is the ordered key/value header of a datafile. It is not
// modified after parsing.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// NewMetadata zips keys and values positionally. Extra entries on either
// side are ignored; a repeated key keeps its first position and last value.
func NewMetadata(keys []string, values []Value) *Metadata {
	md := &Metadata{values: make(map[string]Value)}
	md.add(keys, values)
	return md
}

func (md *Metadata) add(keys []string, values []Value) {
	n := min(len(keys), len(values))
	for i := 0; i < n; i++ {
		if _, exists := md.values[keys[i]]; !exists {
			md.keys = append(md.keys, keys[i])
		}
		md.values[keys[i]] = values[i]
	}
}

func (md *Metadata) Keys() []string {
	return append([]string(nil), md.keys...)
}

func (md *Metadata) Len() int {
	return len(md.keys)
}

func (md *Metadata) Get(key string) (Value, bool) {
	v, ok := md.values[key]
	return v, ok
}

func (md *Metadata) Has(key string) bool {
	_, ok := md.values[key]
	return ok
}

func (md *Metadata) lookup(key string) (Value, error) {
	v, ok := md.values[key]
	if !ok {
		return Value{}, errors.Wrapf(ErrMissingField, "%q", key)
	}
	return v, nil
}

// Int returns an integer field. Floats with an integral value are accepted.
func (md *Metadata) Int(key string) (int, error) {
	v, err := md.lookup(key)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindInt:
		return int(v.Int), nil
	case KindFloat:
		if v.Float == math.Trunc(v.Float) {
			return int(v.Float), nil
		}
	}
	return 0, errors.Errorf("metadata field %q: %q is not an integer", key, v.Raw)
}

func (md *Metadata) Float(key string) (float64, error) {
	v, err := md.lookup(key)
	if err != nil {
		return 0, err
	}
	if v.Kind == KindString {
		return 0, errors.Errorf("metadata field %q: %q is not a number", key, v.Raw)
	}
	return v.Float, nil
}

func (md *Metadata) String(key string) (string, error) {
	v, err := md.lookup(key)
	if err != nil {
		return "", err
	}
	return v.Raw, nil
}

func (md *Metadata) Mode() (Mode, error) {
	s, err := md.String(MeasurementTypeKey)
	if err != nil {
		return "", err
	}
	return ParseMode(s)
}

var (
	keysPattern   = regexp.MustCompile(`\s*([A-Z][a-z]+\d?(?: ?[a-zA-Z]+)*)`)
	valuesPattern = regexp.MustCompile(`-?(?:\d+\.\d+|\de-\d\d|\d+|[A-Z]+ ?[A-Z]+)`)
	fieldSplit    = regexp.MustCompile(`\t+| {2,}`)
)

// ColumnHeaderKey starts the column header of a CV body.
const ColumnHeaderKey = "Reactance"

// ParseMetadata reads (key line, value line) pairs from lines, skipping
// blank lines. It stops after the pair carrying "Measurement type", or at a
// key line naming Reactance, which is a CV column header. CV metadata runs
// on past the measurement type, so for CVS only the column header ends it.
// The returned index is the first line of the body.
func ParseMetadata(lines []string) (*Metadata, int, error) {
	md := NewMetadata(nil, nil)

	i := 0
	for {
		keyIdx := nextNonBlank(lines, i)
		if keyIdx < 0 {
			break
		}
		keys := SplitKeys(lines[keyIdx])
		if IsColumnHeader(keys) {
			return md, keyIdx, nil
		}

		valIdx := nextNonBlank(lines, keyIdx+1)
		if valIdx < 0 {
			return nil, 0, errors.Errorf("metadata line %d: key line %q has no value line", keyIdx+1, strings.TrimSpace(lines[keyIdx]))
		}
		values := splitValues(lines[valIdx])
		if len(keys) < len(values) {
			keys = repartitionKeys(keys, len(values))
		}

		md.add(keys, values)
		i = valIdx + 1

		if md.Has(MeasurementTypeKey) {
			if mode, err := md.Mode(); err != nil || mode != ModeCV {
				return md, i, nil
			}
		}
	}

	if !md.Has(MeasurementTypeKey) {
		return nil, 0, errors.Wrapf(ErrMissingField, "%q", MeasurementTypeKey)
	}
	return md, len(lines), nil
}

// IsColumnHeader reports whether parsed keys belong to a body column header.
func IsColumnHeader(keys []string) bool {
	for _, k := range keys {
		if k == ColumnHeaderKey {
			return true
		}
	}
	return false
}

func nextNonBlank(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}

// SplitKeys extracts the metadata keys of one key line.
func SplitKeys(line string) []string {
	var keys []string
	for _, field := range fieldSplit.Split(line, -1) {
		for _, m := range keysPattern.FindAllStringSubmatch(field, -1) {
			keys = append(keys, m[1])
		}
	}
	return keys
}

func splitValues(line string) []Value {
	tokens := valuesPattern.FindAllString(line, -1)
	values := make([]Value, len(tokens))
	for i, tok := range tokens {
		values[i] = ParseValue(tok)
	}
	return values
}

// repartitionKeys splits run-together keys ("Measurement Number Measurement
// ID") into n keys. Cuts go before capitalized words and existing key
// boundaries are kept. Keys repeating the leading word of the line are
// preferred ("Rump time", "Rump Interg time"), then the partition with the
// smallest sum of squared key lengths; the first one on ties.
func repartitionKeys(keys []string, n int) []string {
	var words []string
	mandatory := map[int]bool{}
	for _, k := range keys {
		if len(words) > 0 {
			mandatory[len(words)] = true
		}
		words = append(words, strings.Fields(k)...)
	}
	if n > len(words) || n <= len(keys) {
		return keys
	}

	allowed := func(j int) bool {
		return mandatory[j] || unicode.IsUpper([]rune(words[j])[0])
	}
	span := func(a, b int) float64 {
		l := len(strings.Join(words[a:b], " "))
		c := float64(l * l)
		if a > 0 && words[a] != words[0] {
			c += unmatchedPenalty
		}
		return c
	}

	m := len(words)
	inf := math.Inf(1)
	// cost[k][j]: best cost of words[:j] in k keys; cut[k][j]: start of the last key.
	cost := make([][]float64, n+1)
	cut := make([][]int, n+1)
	for k := range cost {
		cost[k] = make([]float64, m+1)
		cut[k] = make([]int, m+1)
		for j := range cost[k] {
			cost[k][j] = inf
		}
	}
	cost[0][0] = 0

	for k := 1; k <= n; k++ {
		for j := k; j <= m; j++ {
			if j < m && !allowed(j) {
				continue
			}
			for s := k - 1; s < j; s++ {
				if cost[k-1][s] == inf || (s > 0 && !allowed(s)) {
					continue
				}
				if crossesMandatory(mandatory, s, j) {
					continue
				}
				if c := cost[k-1][s] + span(s, j); c < cost[k][j] {
					cost[k][j] = c
					cut[k][j] = s
				}
			}
		}
	}
	if cost[n][m] == inf {
		return keys
	}

	out := make([]string, n)
	j := m
	for k := n; k > 0; k-- {
		s := cut[k][j]
		out[k-1] = strings.Join(words[s:j], " ")
		j = s
	}
	return out
}

const unmatchedPenalty = 1e9

func crossesMandatory(mandatory map[int]bool, from, to int) bool {
	for b := range mandatory {
		if b > from && b < to {
			return true
		}
	}
	return false
}
