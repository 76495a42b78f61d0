// Package skills discovers and validates skill definitions on disk before
// a session loads them. A skill lives in its own directory as a SKILL.md
// file: YAML frontmatter (name, description) followed by the markdown
// instructions the model receives.
package skills

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter is returned for SKILL.md files missing the leading
// YAML frontmatter block.
var ErrNoFrontmatter = errors.New("skills: SKILL.md has no frontmatter block")

// Skill is one parsed skill definition.
type Skill struct {
	// Name from the frontmatter.
	Name string `yaml:"name"`
	// Description from the frontmatter.
	Description string `yaml:"description"`
	// Instructions is the markdown body below the frontmatter.
	Instructions string `yaml:"-"`
	// Path of the SKILL.md file.
	Path string `yaml:"-"`
	// Dir is the skill's directory.
	Dir string `yaml:"-"`
}

var frontmatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n?`)

// Parse reads one SKILL.md file.
func Parse(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("skills: read %s: %w", path, err)
	}

	m := frontmatterRe.FindSubmatch(bytes.TrimLeft(data, "\xef\xbb\xbf"))
	if m == nil {
		return Skill{}, fmt.Errorf("%w: %s", ErrNoFrontmatter, path)
	}

	var skill Skill
	if err := yaml.Unmarshal(m[1], &skill); err != nil {
		return Skill{}, fmt.Errorf("skills: parse frontmatter of %s: %w", path, err)
	}
	skill.Instructions = strings.TrimSpace(string(data[len(m[0]):]))
	skill.Path = path
	skill.Dir = filepath.Dir(path)
	return skill, nil
}

// Validate checks a parsed skill for the fields the CLI requires.
func Validate(s Skill) error {
	var problems []string
	if s.Name == "" {
		problems = append(problems, "name is required")
	}
	if s.Description == "" {
		problems = append(problems, "description is required")
	}
	if s.Instructions == "" {
		problems = append(problems, "instructions body is empty")
	}
	if s.Name != "" && s.Dir != "" && filepath.Base(s.Dir) != s.Name {
		problems = append(problems, fmt.Sprintf("name %q does not match directory %q", s.Name, filepath.Base(s.Dir)))
	}
	if len(problems) > 0 {
		return fmt.Errorf("skills: invalid skill at %s: %s", s.Path, strings.Join(problems, "; "))
	}
	return nil
}

// Discover scans the given directories for skills, one directory level
// deep, mirroring how the CLI resolves SessionConfig.SkillDirectories.
// Invalid skill files fail the whole scan so misconfigurations surface
// before a session starts.
func Discover(dirs ...string) ([]Skill, error) {
	var out []Skill
	seen := make(map[string]bool)

	for _, dir := range dirs {
		matches, err := doublestar.Glob(os.DirFS(dir), "*/SKILL.md")
		if err != nil {
			return nil, fmt.Errorf("skills: scan %s: %w", dir, err)
		}
		for _, rel := range matches {
			skill, err := Parse(filepath.Join(dir, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
			if err := Validate(skill); err != nil {
				return nil, err
			}
			if seen[skill.Name] {
				return nil, fmt.Errorf("skills: duplicate skill name %q at %s", skill.Name, skill.Path)
			}
			seen[skill.Name] = true
			out = append(out, skill)
		}
	}
	return out, nil
}

// Names returns the skill names in declaration order, handy for building
// SessionConfig.DisabledSkills complements.
func Names(skills []Skill) []string {
	names := make([]string, len(skills))
	for i, s := range skills {
		names[i] = s.Name
	}
	return names
}
