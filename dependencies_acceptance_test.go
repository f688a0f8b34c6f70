package crudkit_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestModuleDependencies_Present(t *testing.T) {
	goMod, err := os.ReadFile("go.mod")
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}

	for _, module := range []string{
		"gorm.io/gorm",
		"gorm.io/driver/postgres",
		"github.com/glebarez/sqlite",
		"github.com/gin-gonic/gin",
		"github.com/go-playground/validator/v10",
		"github.com/google/uuid",
		"github.com/knadh/koanf/v2",
		"github.com/simp-lee/logger",
		"github.com/simp-lee/pagination",
	} {
		if !moduleRequired(string(goMod), module) {
			t.Errorf("expected module %q to be present in go.mod", module)
		}
	}
}

func TestModuleRequired_MissingInFixture(t *testing.T) {
	fixture := `module example.com/demo

go 1.25.0

require (
	github.com/gin-gonic/gin v1.11.0
)`
	if moduleRequired(fixture, "gorm.io/gorm") {
		t.Fatal("expected fixture to not contain gorm.io/gorm")
	}
	if !moduleRequired(fixture, "github.com/gin-gonic/gin") {
		t.Fatal("expected fixture to contain gin")
	}
}

// The data-access core stays free of transport imports and the domain
// package stays free of storage imports.
func TestLayering(t *testing.T) {
	tests := []struct {
		dir       string
		forbidden []string
	}{
		{"internal/domain", []string{"gorm.io/", "github.com/gin-gonic/gin", "crudkit/internal/base", "crudkit/internal/pkg"}},
		{"internal/base", []string{"github.com/gin-gonic/gin", "crudkit/internal/module", "crudkit/internal/app"}},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			hits, err := findImports(tt.dir, tt.forbidden)
			if err != nil {
				t.Fatalf("scan %s: %v", tt.dir, err)
			}
			if len(hits) != 0 {
				t.Fatalf("forbidden imports in %s: %v", tt.dir, hits)
			}
		})
	}
}

func TestImportPattern_DetectsFixture(t *testing.T) {
	fixture := `package base

import (
	"context"

	"github.com/gin-gonic/gin"
)`
	if len(matchImports(fixture, []string{"github.com/gin-gonic/gin"})) != 1 {
		t.Fatal("expected gin import to be detected in fixture")
	}
	if len(matchImports(fixture, []string{"gorm.io/"})) != 0 {
		t.Fatal("expected no gorm import in fixture")
	}
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

var importLine = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"([^"]+)"\s*$`)

func findImports(root string, forbidden []string) ([]string, error) {
	var hits []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, imp := range matchImports(string(b), forbidden) {
			hits = append(hits, path+": "+imp)
		}
		return nil
	})
	return hits, err
}

func matchImports(content string, forbidden []string) []string {
	var out []string
	for _, m := range importLine.FindAllStringSubmatch(content, -1) {
		for _, f := range forbidden {
			if strings.Contains(m[1], f) {
				out = append(out, m[1])
			}
		}
	}
	return out
}
