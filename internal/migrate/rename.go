package migrate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrEmptyMapping = errors.New("table mapping is empty")

// DefaultExtensions are the file types scanned when none are given.
var DefaultExtensions = []string{".php", ".sql"}

// statementKeywords precede a table name in the statements that get
// rewritten.
const statementKeywords = `FROM|JOIN|INTO|UPDATE|` +
	`CREATE\s+TABLE(?:\s+IF\s+NOT\s+EXISTS)?|` +
	`ALTER\s+TABLE|` +
	`DROP\s+TABLE(?:\s+IF\s+EXISTS)?|` +
	`REFERENCES|` +
	`SHOW\s+COLUMNS\s+FROM`

// RenameReport summarises a rename run.
type RenameReport struct {
	FilesScanned  int
	FilesModified int
	Replacements  int
	Modified      []string
	Skipped       []string
}

// Renamer rewrites table references in source files.
type Renamer struct {
	mapping    map[string]string
	pattern    *regexp.Regexp
	extensions map[string]bool
	dryRun     bool
}

// NewRenamer builds a Renamer for the old→new mapping. Table names match
// case-insensitively; every reference is rewritten in a single pass, so
// chained mappings do not cascade.
func NewRenamer(mapping map[string]string, extensions []string, dryRun bool) (*Renamer, error) {
	if len(mapping) == 0 {
		return nil, ErrEmptyMapping
	}

	lookup := make(map[string]string, len(mapping))
	names := make([]string, 0, len(mapping))
	for oldName, newName := range mapping {
		if !identifierPattern.MatchString(oldName) || !identifierPattern.MatchString(newName) {
			return nil, ErrInvalidIdentifier
		}
		lookup[strings.ToLower(oldName)] = newName
		names = append(names, regexp.QuoteMeta(oldName))
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	alt := strings.Join(names, "|")

	pattern := regexp.MustCompile(`(?i)\b(` + statementKeywords + `)(\s+)(` + "`?" + `)(` + alt + `)\b(` + "`?" + `)` +
		"|`(" + alt + ")`")

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	return &Renamer{mapping: lookup, pattern: pattern, extensions: exts, dryRun: dryRun}, nil
}

// Rewrite returns content with every table reference renamed and the number
// of substitutions made.
func (r *Renamer) Rewrite(content string) (string, int) {
	matches := r.pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, m := range matches {
		b.WriteString(content[last:m[0]])
		if m[2] >= 0 {
			// keyword form: keyword, space, `?, name, `?
			b.WriteString(content[m[2]:m[3]])
			b.WriteString(content[m[4]:m[5]])
			b.WriteString(content[m[6]:m[7]])
			b.WriteString(r.mapping[strings.ToLower(content[m[8]:m[9]])])
			b.WriteString(content[m[10]:m[11]])
		} else {
			b.WriteString("`" + r.mapping[strings.ToLower(content[m[12]:m[13]])] + "`")
		}
		last = m[1]
	}
	b.WriteString(content[last:])
	return b.String(), len(matches)
}

// Run rewrites every matching file under root. Unreadable directories and
// files are skipped with a warning; only a missing root is fatal.
func (r *Renamer) Run(ctx context.Context, root string) (RenameReport, error) {
	var report RenameReport

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root && d == nil {
				return walkErr
			}
			log.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable path")
			report.Skipped = append(report.Skipped, path)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !r.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		report.FilesScanned++
		return r.rewriteFile(path, d, &report)
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

func (r *Renamer) rewriteFile(path string, d fs.DirEntry, report *RenameReport) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("skipping unreadable file")
		report.Skipped = append(report.Skipped, path)
		return nil
	}

	out, n := r.Rewrite(string(data))
	if n == 0 {
		return nil
	}

	report.FilesModified++
	report.Replacements += n
	report.Modified = append(report.Modified, path)
	log.Info().Str("path", path).Int("replacements", n).Bool("dry_run", r.dryRun).Msg("table references rewritten")

	if r.dryRun {
		return nil
	}

	mode := fs.FileMode(0o644)
	if info, err := d.Info(); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(out), mode); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to write file")
		report.Skipped = append(report.Skipped, path)
	}
	return nil
}

// ParseMapping reads old=new pairs.
func ParseMapping(pairs []string) (map[string]string, error) {
	mapping := make(map[string]string, len(pairs))
	for _, p := range pairs {
		oldName, newName, ok := strings.Cut(p, "=")
		oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
		if !ok || !identifierPattern.MatchString(oldName) || !identifierPattern.MatchString(newName) {
			return nil, errors.Join(ErrInvalidIdentifier, errors.New("mapping must be old=new: "+p))
		}
		mapping[oldName] = newName
	}
	return mapping, nil
}
