// Package shvars reads and writes the bash-sourceable key=value files shared
// with service hook scripts:
//
//	# comment
//	SERVICENAME="blog"
//	VOLUMES=("/data" "/config")
//	DEBUG=yes
//
// Keys are matched case-insensitively and keep their first-seen spelling and
// order when written back.
package shvars

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type entry struct {
	key   string
	value string // raw, as it appears right of '='
}

// File is an ordered set of settings.
type File struct {
	entries []entry
}

// New returns an empty File.
func New() *File {
	return &File{}
}

// Read parses the file at path. A missing file returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads settings from r. Lines without '=' and comment lines are ignored.
func Parse(r io.Reader) (*File, error) {
	out := New()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" || strings.HasPrefix(key, "#") {
			continue
		}
		out.set(key, strings.TrimSpace(line[eq+1:]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return out, nil
}

func (f *File) find(key string) int {
	for i, e := range f.entries {
		if strings.EqualFold(e.key, key) {
			return i
		}
	}
	return -1
}

func (f *File) set(key, raw string) {
	if i := f.find(key); i >= 0 {
		f.entries[i].value = raw
		return
	}
	f.entries = append(f.entries, entry{key: key, value: raw})
}

// Has reports whether key is present.
func (f *File) Has(key string) bool {
	return f.find(key) >= 0
}

// Keys returns the keys in file order.
func (f *File) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.key
	}
	return keys
}

// String returns the unquoted scalar value of key.
func (f *File) String(key string) (string, bool) {
	i := f.find(key)
	if i < 0 {
		return "", false
	}
	return unquote(f.entries[i].value), true
}

// StringOr returns the value of key, or def when key is absent.
func (f *File) StringOr(key, def string) string {
	if v, ok := f.String(key); ok {
		return v
	}
	return def
}

// Bool interprets values starting with y or t (any case) as true.
func (f *File) Bool(key string) bool {
	v, _ := f.String(key)
	if v == "" {
		return false
	}
	c := v[0] | 0x20
	return c == 'y' || c == 't'
}

// List returns the elements of a parenthesised list value. A scalar value is
// returned as a one-element list; an absent key as nil.
func (f *File) List(key string) []string {
	i := f.find(key)
	if i < 0 {
		return nil
	}
	raw := strings.TrimSpace(f.entries[i].value)
	raw = strings.TrimPrefix(raw, "(")
	raw = strings.TrimSuffix(raw, ")")
	return splitWords(raw)
}

// SetString stores a quoted scalar.
func (f *File) SetString(key, value string) {
	f.set(key, quote(value))
}

// SetBool stores yes or no.
func (f *File) SetBool(key string, b bool) {
	if b {
		f.set(key, "yes")
		return
	}
	f.set(key, "no")
}

// SetList stores a parenthesised list of quoted elements.
func (f *File) SetList(key string, values []string) {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	f.set(key, "("+strings.Join(quoted, " ")+")")
}

// WriteTo writes the settings in file order.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, e := range f.entries {
		buf.WriteString(e.key)
		buf.WriteByte('=')
		buf.WriteString(e.value)
		buf.WriteByte('\n')
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Write replaces the file at path atomically. Settings files must carry the
// .sh extension since hook scripts source them.
func (f *File) Write(path string) error {
	if filepath.Ext(path) != ".sh" {
		return fmt.Errorf("settings file %s must have a .sh extension", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	fmt.Fprintf(tmp, "# %s\n# svcrunner generated settings, do not edit.\n", path)
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

func unquote(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return unescape(raw[1 : len(raw)-1])
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitWords splits on whitespace outside double or single quotes and strips
// the quotes. Empty elements are dropped.
func splitWords(s string) []string {
	var (
		words   []string
		cur     strings.Builder
		inQuote byte
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote == 0 && (c == ' ' || c == '\t'):
			flush()
		case inQuote == 0 && (c == '"' || c == '\''):
			inQuote = c
		case inQuote != 0 && c == inQuote:
			inQuote = 0
		case inQuote == '"' && c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return words
}
