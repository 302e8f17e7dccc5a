package tape

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"tapedeck/internal/services"
)

// DefaultExtension is the file suffix tapes are discovered by.
const DefaultExtension = ".tape"

var outputDirective = regexp.MustCompile(`^Output "(.*)"$`)

// Script is one resolved tape.
type Script struct {
	Name string
	// Path is the tape source on disk.
	Path string
	// Output is the artifact path exactly as declared by the tape.
	Output string
}

// Catalog enumerates and resolves tapes in one directory.
type Catalog struct {
	dir string
	ext string
}

// NewCatalog returns a catalog over dir. An empty ext selects DefaultExtension.
func NewCatalog(dir, ext string) *Catalog {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Catalog{dir: dir, ext: ext}
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// ListAll returns the name of every regular tape file in the directory, in
// enumeration order.
func (c *Catalog) ListAll() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "tape", "list", fmt.Sprintf("tape directory %s", c.dir), err)
		}
		return nil, fmt.Errorf("list tapes: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, c.ext) || len(name) == len(c.ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, c.ext))
	}
	return names, nil
}

// Resolve reads the named tape and its declared output. Names are base names
// inside the tape directory; anything that would escape it is not found.
func (c *Catalog) Resolve(name string) (Script, error) {
	path := filepath.Join(c.dir, name+c.ext)
	if !validName(name) {
		return Script{}, &NotFoundError{Name: name, Path: path}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Script{}, &NotFoundError{Name: name, Path: path}
		}
		return Script{}, fmt.Errorf("stat tape %s: %w", path, err)
	}
	if info.IsDir() {
		return Script{}, &NotFoundError{Name: name, Path: path}
	}
	output, err := DeclaredOutput(path)
	if err != nil {
		return Script{}, err
	}
	return Script{Name: name, Path: path, Output: output}, nil
}

func validName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// ResolveAll resolves names in the given order, or every listed tape sorted
// by name when names is empty. Parse errors abort before anything is returned,
// as do two tapes declaring the same output.
func (c *Catalog) ResolveAll(names []string) ([]Script, error) {
	if len(names) == 0 {
		listed, err := c.ListAll()
		if err != nil {
			return nil, err
		}
		sort.Strings(listed)
		names = listed
	}
	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		script, err := c.Resolve(name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	if err := CheckUniqueOutputs(scripts); err != nil {
		return nil, err
	}
	return scripts, nil
}

// CheckUniqueOutputs rejects scripts that would write the same artifact.
// Outputs are compared after path cleaning and case folding.
func CheckUniqueOutputs(scripts []Script) error {
	fold := cases.Fold()
	seen := make(map[string]int, len(scripts))
	for i, script := range scripts {
		key := fold.String(filepath.Clean(script.Output))
		first, ok := seen[key]
		if !ok {
			seen[key] = i
			continue
		}
		tapes := []string{scripts[first].Name}
		for _, other := range scripts[i:] {
			if fold.String(filepath.Clean(other.Output)) == key {
				tapes = append(tapes, other.Name)
			}
		}
		return &DuplicateOutputError{Output: scripts[first].Output, Tapes: tapes}
	}
	return nil
}

// DeclaredOutput scans the tape at path for its single Output directive and
// returns the quoted path verbatim.
func DeclaredOutput(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Path: path}
		}
		return "", fmt.Errorf("open tape %s: %w", path, err)
	}
	defer file.Close()

	var (
		output string
		count  int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		match := outputDirective.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		count++
		if count == 1 {
			output = match[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read tape %s: %w", path, err)
	}
	if count != 1 {
		return "", &MalformedScriptError{Path: path, Directives: count}
	}
	return output, nil
}
