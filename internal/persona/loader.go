// Package persona loads the static background material the twin represents.
//
// The data directory holds:
//
//	facts.json | facts.yaml   structured facts, must include name and full_name
//	summary.txt               free-text summary notes
//	style.txt                 communication-style notes
//	resume.pdf                resume document
//	linkedin.pdf              professional profile document
//
// The two documents are optional: any failure to read them substitutes a fixed
// placeholder. The facts and notes are a startup precondition.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// Placeholders substituted for documents that cannot be read.
const (
	ResumePlaceholder  = "Resume not available"
	ProfilePlaceholder = "linkedin profile not available"
)

// Source file names inside the data directory.
const (
	SummaryFile = "summary.txt"
	StyleFile   = "style.txt"
	ResumeFile  = "resume.pdf"
	ProfileFile = "linkedin.pdf"
)

var factsFiles = []string{"facts.json", "facts.yaml", "facts.yml"}

// TextExtractor pulls plain text out of a document on disk.
type TextExtractor func(path string) (string, error)

// Loader reads persona sources from a directory.
type Loader struct {
	dir     string
	extract TextExtractor
}

// NewLoader creates a loader for dir that extracts documents with go-fitz.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, extract: ExtractPDFText}
}

// WithExtractor replaces the document text extractor.
func (l *Loader) WithExtractor(extract TextExtractor) *Loader {
	l.extract = extract
	return l
}

// Load reads the persona sources in dir.
func Load(dir string) (*twintypes.Persona, error) {
	return NewLoader(dir).Load()
}

// Load reads every source and assembles an immutable persona.
func (l *Loader) Load() (*twintypes.Persona, error) {
	logger.ServiceOperation("persona", "load", "starting", "dir", l.dir)

	facts, err := l.loadFacts()
	if err != nil {
		return nil, err
	}

	name, err := requiredString(facts, "name")
	if err != nil {
		return nil, err
	}
	fullName, err := requiredString(facts, "full_name")
	if err != nil {
		return nil, err
	}

	summary, err := l.readText(SummaryFile)
	if err != nil {
		return nil, err
	}
	style, err := l.readText(StyleFile)
	if err != nil {
		return nil, err
	}

	resume := l.readDocument(ResumeFile, ResumePlaceholder)
	profile := l.readDocument(ProfileFile, ProfilePlaceholder)

	extra := make([]twintypes.Fact, 0, len(facts))
	for key, value := range facts {
		if key == "name" || key == "full_name" {
			continue
		}
		extra = append(extra, twintypes.Fact{Key: key, Value: value})
	}

	logger.ServiceOperation("persona", "load", "completed", "name", name, "facts", len(extra))
	return twintypes.NewPersona(name, fullName, extra, summary, style, resume, profile), nil
}

func (l *Loader) loadFacts() (map[string]interface{}, error) {
	for _, file := range factsFiles {
		path := filepath.Join(l.dir, file)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read facts file %s: %w", path, err)
		}

		facts := map[string]interface{}{}
		if strings.HasSuffix(file, ".json") {
			err = json.Unmarshal(data, &facts)
		} else {
			err = yaml.Unmarshal(data, &facts)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse facts file %s: %w", path, err)
		}
		return facts, nil
	}

	return nil, fmt.Errorf("no facts file found in %s (expected one of %s)", l.dir, strings.Join(factsFiles, ", "))
}

func (l *Loader) readText(file string) (string, error) {
	path := filepath.Join(l.dir, file)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func (l *Loader) readDocument(file, placeholder string) string {
	path := filepath.Join(l.dir, file)
	text, err := l.extract(path)
	if err != nil {
		logger.Warn("Persona document unavailable, using placeholder", "file", path, "error", err)
		return placeholder
	}
	return text
}

func requiredString(facts map[string]interface{}, key string) (string, error) {
	value, ok := facts[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("facts must define a non-empty %q", key)
	}
	return value, nil
}
