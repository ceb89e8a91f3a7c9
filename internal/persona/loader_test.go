package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func seedDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "facts.json", `{"full_name": "Ada Lovelace", "name": "Ada", "location": "London", "languages": ["Python", "Go"]}`)
	writeFile(t, dir, SummaryFile, "Mathematician and engineer.")
	writeFile(t, dir, StyleFile, "Warm and precise.")
	return dir
}

func fakeExtractor(texts map[string]string) TextExtractor {
	return func(path string) (string, error) {
		if text, ok := texts[filepath.Base(path)]; ok {
			return text, nil
		}
		return "", errors.New("no such document")
	}
}

func TestLoad_MissingDocumentsUsePlaceholders(t *testing.T) {
	dir := seedDataDir(t)

	p, err := NewLoader(dir).WithExtractor(fakeExtractor(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, "Ada", p.Name())
	assert.Equal(t, "Ada Lovelace", p.FullName())
	assert.Equal(t, "Mathematician and engineer.", p.Summary())
	assert.Equal(t, "Warm and precise.", p.Style())
	assert.Equal(t, ResumePlaceholder, p.Resume())
	assert.Equal(t, ProfilePlaceholder, p.Profile())
}

func TestLoad_DocumentsExtracted(t *testing.T) {
	dir := seedDataDir(t)
	extract := fakeExtractor(map[string]string{
		ResumeFile:  "Resume text",
		ProfileFile: "Profile text",
	})

	p, err := NewLoader(dir).WithExtractor(extract).Load()
	require.NoError(t, err)

	assert.Equal(t, "Resume text", p.Resume())
	assert.Equal(t, "Profile text", p.Profile())
}

func TestLoad_FactsExcludeIdentityKeys(t *testing.T) {
	dir := seedDataDir(t)

	p, err := NewLoader(dir).WithExtractor(fakeExtractor(nil)).Load()
	require.NoError(t, err)

	facts := p.Facts()
	require.Len(t, facts, 2)
	assert.Equal(t, "languages", facts[0].Key, "facts are sorted by key")
	assert.Equal(t, "location", facts[1].Key)
	assert.Equal(t, "London", facts[1].Value)

	assert.JSONEq(t,
		`{"full_name": "Ada Lovelace", "name": "Ada", "location": "London", "languages": ["Python", "Go"]}`,
		p.FactsText())
}

func TestLoad_YAMLFacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "facts.yaml", "name: Ada\nfull_name: Ada Lovelace\nrole: Engineer\n")
	writeFile(t, dir, SummaryFile, "summary")
	writeFile(t, dir, StyleFile, "style")

	p, err := NewLoader(dir).WithExtractor(fakeExtractor(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", p.FullName())
	require.Len(t, p.Facts(), 1)
	assert.Equal(t, "Engineer", p.Facts()[0].Value)
}

func TestLoad_Idempotent(t *testing.T) {
	dir := seedDataDir(t)
	loader := NewLoader(dir).WithExtractor(fakeExtractor(map[string]string{ResumeFile: "Resume text"}))

	first, err := loader.Load()
	require.NoError(t, err)
	second, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.FactsText(), second.FactsText())
}

func TestLoad_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		wantErr string
	}{
		{
			name:    "no facts file",
			setup:   func(t *testing.T, dir string) { writeFile(t, dir, SummaryFile, "s"); writeFile(t, dir, StyleFile, "s") },
			wantErr: "no facts file found",
		},
		{
			name: "malformed facts",
			setup: func(t *testing.T, dir string) {
				writeFile(t, dir, "facts.json", "{not json")
			},
			wantErr: "failed to parse facts file",
		},
		{
			name: "facts without full name",
			setup: func(t *testing.T, dir string) {
				writeFile(t, dir, "facts.json", `{"name": "Ada"}`)
			},
			wantErr: `"full_name"`,
		},
		{
			name: "missing summary",
			setup: func(t *testing.T, dir string) {
				writeFile(t, dir, "facts.json", `{"name": "Ada", "full_name": "Ada Lovelace"}`)
				writeFile(t, dir, StyleFile, "s")
			},
			wantErr: SummaryFile,
		},
		{
			name: "missing style",
			setup: func(t *testing.T, dir string) {
				writeFile(t, dir, "facts.json", `{"name": "Ada", "full_name": "Ada Lovelace"}`)
				writeFile(t, dir, SummaryFile, "s")
			},
			wantErr: StyleFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			_, err := NewLoader(dir).WithExtractor(fakeExtractor(nil)).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
