package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// descFiles are the archive members holding the package description
var descFiles = []string{"install/slack-desc", "install/desc"}

// Info is what a package file name says about the package
type Info struct {
	Name    string
	Version string
	Arch    string
	Build   string
}

// ParseFileName splits "<name>-<version>-<arch>-<build>.txz". The name
// may itself contain dashes.
func ParseFileName(file string) (Info, error) {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, "."+Extension)
	if stem == base {
		return Info{}, fmt.Errorf("%s: not a .%s package", base, Extension)
	}

	parts := strings.Split(stem, "-")
	if len(parts) < 4 {
		return Info{}, fmt.Errorf("%s: expected name-version-arch-build", base)
	}
	n := len(parts)
	return Info{
		Name:    strings.Join(parts[:n-3], "-"),
		Version: parts[n-3],
		Arch:    parts[n-2],
		Build:   parts[n-1],
	}, nil
}

// Description is the package description shipped inside a package
type Description struct {
	Summary string
	Lines   []string
	Files   int
}

// Describe reads the description of an xz compressed package archive
func Describe(file string) (*Description, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}

	desc := &Description{}
	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		desc.Files++

		name := strings.TrimPrefix(hdr.Name, "./")
		if !isDescFile(name) || desc.Lines != nil {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		desc.Lines = parseDesc(string(data))
	}

	if len(desc.Lines) > 0 {
		desc.Summary = desc.Lines[0]
	}
	return desc, nil
}

func isDescFile(name string) bool {
	for _, d := range descFiles {
		if name == d {
			return true
		}
	}
	return false
}

// parseDesc strips the "name:" prefix of each description line and drops
// comments and empty lines
func parseDesc(s string) []string {
	lines := []string{}
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if _, text, ok := strings.Cut(line, ":"); ok {
			line = text
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
