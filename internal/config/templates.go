package config

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"
)

//go:embed all:templates
var templateFS embed.FS

const templatesRoot = "templates"

// TemplateVars feeds text/template substitution in .tmpl files. Files without
// the extension are copied byte for byte.
type TemplateVars struct {
	// ProjectName names the scaffolded project, e.g. "my-runner".
	ProjectName string
}

// ListTemplates names the project templates compiled into the binary.
func ListTemplates() ([]string, error) {
	entries, err := templateFS.ReadDir(templatesRoot)
	if err != nil {
		return nil, fmt.Errorf("reading templates directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// TemplateExists reports whether name is a known template. Path metacharacters
// in name simply fail the lookup.
func TemplateExists(name string) bool {
	info, err := fs.Stat(templateFS, templatesRoot+"/"+name)
	return err == nil && info.IsDir()
}

// RenderTemplate materializes the named template under destDir and returns
// the paths it wrote, each joined with destDir. A ".tmpl" suffix marks a file
// for substitution with vars and is stripped from the output name. Existing
// files are left alone unless force is set; skipped files do not appear in
// the returned list.
func RenderTemplate(name string, destDir string, vars TemplateVars, force bool) ([]string, error) {
	if !TemplateExists(name) {
		return nil, fmt.Errorf("template %q not found", name)
	}

	root := templatesRoot + "/" + name
	var created []string

	err := fs.WalkDir(templateFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking template %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(path, root+"/")
		dest := filepath.Join(destDir, filepath.FromSlash(strings.TrimSuffix(rel, ".tmpl")))

		if _, statErr := os.Stat(dest); statErr == nil && !force {
			log.Debug("keeping existing file", "path", dest)
			return nil
		}

		if err := renderFile(path, dest, vars); err != nil {
			return err
		}
		created = append(created, dest)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// renderFile writes one embedded template file to dest, substituting vars
// when the source carries the .tmpl extension. Scaffolded files may hold
// policy and endpoint settings, so they are written owner-only.
func renderFile(src, dest string, vars TemplateVars) error {
	content, err := templateFS.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading embedded file %s: %w", src, err)
	}

	if strings.HasSuffix(src, ".tmpl") {
		tmpl, err := template.New(filepath.Base(src)).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", src, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, vars); err != nil {
			return fmt.Errorf("executing template %s: %w", src, err)
		}
		content = buf.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, content, 0o600); err != nil {
		return fmt.Errorf("writing file %s: %w", dest, err)
	}
	log.Debug("created file", "path", dest)
	return nil
}
