package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/agleyzer/reelserver/internal/media"
	"github.com/spf13/afero"
)

func testProjects() []Project {
	return []Project{
		{ID: "1", Title: "Dynamic Transitions", Categories: []string{"Transitions", "Effects", "Creative"}, Technologies: []string{"After Effects", "Premiere Pro"}},
		{ID: "2", Title: "Cinematic Flow", Categories: []string{"Cinematic", "Color Grading", "Storytelling"}, Technologies: []string{"DaVinci Resolve", "LUTs"}},
		{ID: "5", Title: "Smooth Cuts", Categories: []string{"Editing", "Precision", "Flow"}, Technologies: []string{"Premiere Pro", "After Effects"}},
		{ID: "6", Title: "Color Story", VideoID: "6b", Categories: []string{"Color Grading", "Cinematic"}, Technologies: []string{"DaVinci Resolve"}},
		{ID: "7", Title: "Motion Pack", Categories: []string{"Effects", "Transitions"}, Technologies: []string{"After Effects"}},
	}
}

func ids(projects []Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ID)
	}
	return out
}

func TestNew(t *testing.T) {
	c, err := New(testProjects())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}

	p, ok := c.Get("1")
	if !ok {
		t.Fatal("Get(1) not found")
	}
	if p.VideoID != "1" {
		t.Errorf("VideoID should default to the project id, got %q", p.VideoID)
	}

	p, _ = c.Get("6")
	if p.VideoID != "6b" {
		t.Errorf("explicit VideoID overwritten, got %q", p.VideoID)
	}

	if _, ok := c.Get("nope"); ok {
		t.Error("Get(nope) should not be found")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		projects []Project
	}{
		{"empty id", []Project{{Title: "x"}}},
		{"duplicate id", []Project{{ID: "1"}, {ID: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.projects); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReplace_KeepsOldOnError(t *testing.T) {
	c, _ := New(testProjects())
	if err := c.Replace([]Project{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if c.Len() != 5 {
		t.Errorf("catalog changed after a rejected replace, Len() = %d", c.Len())
	}
}

func TestFilter(t *testing.T) {
	c, _ := New(testProjects())

	tests := []struct {
		name         string
		categories   []string
		technologies []string
		want         []string
	}{
		{"no filters", nil, nil, []string{"1", "2", "5", "6", "7"}},
		{"single category", []string{"Cinematic"}, nil, []string{"2", "6"}},
		{"all categories required", []string{"Effects", "Creative"}, nil, []string{"1"}},
		{"technology", nil, []string{"After Effects"}, []string{"1", "5", "7"}},
		{"category and technology", []string{"Transitions"}, []string{"Premiere Pro"}, []string{"1"}},
		{"no match", []string{"Documentary"}, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(c.Filter(tt.categories, tt.technologies))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelated(t *testing.T) {
	c, _ := New(testProjects())

	// For project 1: 7 shares 2 categories + 1 tech = 5; 5 shares 2 techs = 2;
	// 2 and 6 score 0 and keep catalog order.
	got := ids(c.Related("1", 0))
	want := []string{"7", "5", "2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Related(1) = %v, want %v", got, want)
	}

	got = ids(c.Related("2", 1))
	if !reflect.DeepEqual(got, []string{"6"}) {
		t.Errorf("Related(2, 1) = %v, want [6]", got)
	}

	if got := c.Related("missing", 3); got != nil {
		t.Errorf("Related(missing) = %v, want nil", got)
	}
}

func TestCategoriesAndTechnologies(t *testing.T) {
	c, _ := New(testProjects())

	wantCats := []string{"Cinematic", "Color Grading", "Creative", "Editing", "Effects", "Flow", "Precision", "Storytelling", "Transitions"}
	if got := c.Categories(); !reflect.DeepEqual(got, wantCats) {
		t.Errorf("Categories() = %v, want %v", got, wantCats)
	}

	wantTech := []string{"After Effects", "DaVinci Resolve", "LUTs", "Premiere Pro"}
	if got := c.Technologies(); !reflect.DeepEqual(got, wantTech) {
		t.Errorf("Technologies() = %v, want %v", got, wantTech)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	data, _ := json.Marshal(testProjects())
	afero.WriteFile(fs, "/etc/reel/catalog.json", data, 0o644)
	afero.WriteFile(fs, "/etc/reel/broken.json", []byte("{not json"), 0o644)

	c, err := Load(fs, "/etc/reel/catalog.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}

	if _, err := Load(fs, "/etc/reel/broken.json"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(fs, "/etc/reel/missing.json"); err == nil {
		t.Error("expected read error")
	}
}

func TestFromLibrary(t *testing.T) {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/media", 0o755)
	afero.WriteFile(fs, "/media/Edit 2.mp4", []byte("2"), 0o644)
	afero.WriteFile(fs, "/media/Edit 1.mp4", []byte("1"), 0o644)

	lib, err := media.NewLibrary(fs, "/media", "")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}

	c, err := FromLibrary(lib)
	if err != nil {
		t.Fatalf("FromLibrary failed: %v", err)
	}
	if got := ids(c.All()); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("ids = %v, want [1 2]", got)
	}
	p, _ := c.Get("2")
	if p.Title != "Edit 2" || p.VideoID != "2" {
		t.Errorf("unexpected derived project %+v", p)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	data, _ := json.Marshal(testProjects()[:2])
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	fs := afero.NewOsFs()
	c, err := Load(fs, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	reloaded := make(chan struct{}, 4)
	if err := c.Watch(ctx, fs, path, 20*time.Millisecond, logger, func() { reloaded <- struct{}{} }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	data, _ = json.Marshal(testProjects())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite catalog: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("catalog was not reloaded")
	}

	if c.Len() != 5 {
		t.Errorf("Len() after reload = %d, want 5", c.Len())
	}
}

func TestWatch_KeepsCatalogOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	data, _ := json.Marshal(testProjects())
	os.WriteFile(path, data, 0o644)

	fs := afero.NewOsFs()
	c, _ := Load(fs, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	if err := c.Watch(ctx, fs, path, 20*time.Millisecond, logger, nil); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	os.WriteFile(path, []byte("[{"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if c.Len() != 5 {
		t.Errorf("catalog replaced by a broken file, Len() = %d", c.Len())
	}
}
