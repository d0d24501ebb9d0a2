package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/kalamos/internal/config"
	"git.home.luguber.info/inful/kalamos/internal/layout"
)

const (
	defaultLayout = "<html><body>{{ .Content }}</body></html>"
	postLayout    = "+++\nparent = \"default\"\n+++\n<article><h1>{{ .Page.title }}</h1>{{ .Content }}</article>"
	indexLayout   = "+++\nparent = \"default\"\n+++\n<ul>{{ range .Site.Posts }}<li>{{ .Title }}</li>{{ end }}</ul>{{ .Content }}"

	postA = "+++\ntitle = \"A\"\ndate = \"2024-01-01\"\nurl = \"/a\"\n+++\n\nalpha body\n"
	postB = "+++\ntitle = \"B\"\ndate = \"2024-02-01\"\nurl = \"/b\"\n+++\n\nbeta body\n"
	home  = "+++\ntitle = \"Home\"\nlayout = \"index\"\n+++\n\nwelcome\n"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

// fixtureSite lays out a minimal two-post site with a post listing on the
// index page.
func fixtureSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "layouts", "default.html"), defaultLayout)
	writeFile(t, filepath.Join(root, "layouts", "post.html"), postLayout)
	writeFile(t, filepath.Join(root, "layouts", "index.html"), indexLayout)
	writeFile(t, filepath.Join(root, "posts", "2024-01-01-a.md"), postA)
	writeFile(t, filepath.Join(root, "posts", "2024-02-01-b.md"), postB)
	writeFile(t, filepath.Join(root, "pages", "index.md"), home)
	return root
}

func newEngine(t *testing.T, root string) *Engine {
	t.Helper()
	cfg, err := config.Load(root)
	require.NoError(t, err)
	eng, err := New(cfg)
	require.NoError(t, err)
	return eng.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func readOutput(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "public", filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestFullBuild_RendersWholeSite(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)

	report, err := eng.FullBuild(context.Background())
	require.NoError(t, err)
	require.True(t, report.Full)
	require.Equal(t, 3, report.Rendered)
	require.Equal(t, 0, report.Unchanged)
	require.Empty(t, report.Failed)
	require.Empty(t, report.LoadErrors)
	require.Equal(t, "success", report.Outcome())

	a := readOutput(t, root, "2024/01/01/a.html")
	require.Contains(t, a, "<article>")
	require.Contains(t, a, "alpha body")

	// newest post first, ties broken by id
	index := readOutput(t, root, "index.html")
	require.Less(t, strings.Index(index, "<li>B</li>"), strings.Index(index, "<li>A</li>"))
	require.Contains(t, index, "welcome")
}

func TestFullBuild_SecondPassWritesNothing(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)

	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	report, err := eng.FullBuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Rendered)
	require.Equal(t, 3, report.Unchanged)
	require.Equal(t, 0, report.Deleted)
}

func TestApply_PostEditRerendersPostAndListing(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	edited := strings.Replace(postA, "title = \"A\"", "title = \"A2\"", 1)
	writeFile(t, filepath.Join(root, "posts", "2024-01-01-a.md"), edited)

	report, err := eng.Apply(context.Background(), []Change{{Path: "posts/2024-01-01-a.md", Op: OpModified}})
	require.NoError(t, err)
	require.False(t, report.Full)
	require.Equal(t, 2, report.Rendered) // the post and the index listing
	require.Empty(t, report.Failed)
	require.Contains(t, readOutput(t, root, "index.html"), "<li>A2</li>")
}

func TestApply_PageEditLeavesPostsAlone(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "pages", "index.md"), strings.Replace(home, "welcome", "greetings", 1))

	report, err := eng.Apply(context.Background(), []Change{{Path: "pages/index.md", Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Rendered)
	require.Contains(t, readOutput(t, root, "index.html"), "greetings")
}

func TestApply_LayoutEditRerendersItsUsers(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "layouts", "post.html"),
		"+++\nparent = \"default\"\n+++\n<section>{{ .Content }}</section>")

	report, err := eng.Apply(context.Background(), []Change{{Path: "layouts/post.html", Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, 2, report.Rendered) // both posts, not the index
	require.Contains(t, readOutput(t, root, "2024/01/01/a.html"), "<section>")
}

func TestApply_ParentLayoutEditReachesDescendants(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "layouts", "default.html"),
		"<html><body class=\"v2\">{{ .Content }}</body></html>")

	report, err := eng.Apply(context.Background(), []Change{{Path: "layouts/default.html", Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, 3, report.Rendered)
	require.Contains(t, readOutput(t, root, "index.html"), "class=\"v2\"")
}

func TestApply_RemovedPostDeletesOutputAndUpdatesListing(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "posts", "2024-02-01-b.md")))

	report, err := eng.Apply(context.Background(), []Change{{Path: "posts/2024-02-01-b.md", Op: OpRemoved}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, 1, report.Rendered) // the listing

	_, statErr := os.Stat(filepath.Join(root, "public", "2024", "02", "01", "b.html"))
	require.True(t, os.IsNotExist(statErr))
	require.NotContains(t, readOutput(t, root, "index.html"), "<li>B</li>")
}

func TestApply_DateEditMovesOutput(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	moved := strings.Replace(postA, "2024-01-01", "2024-03-01", 1)
	writeFile(t, filepath.Join(root, "posts", "2024-01-01-a.md"), moved)

	report, err := eng.Apply(context.Background(), []Change{{Path: "posts/2024-01-01-a.md", Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, 2, report.Rendered)

	_, statErr := os.Stat(filepath.Join(root, "public", "2024", "01", "01", "a.html"))
	require.True(t, os.IsNotExist(statErr))
	require.Contains(t, readOutput(t, root, "2024/03/01/a.html"), "alpha body")

	// a now sorts above b
	index := readOutput(t, root, "index.html")
	require.Less(t, strings.Index(index, "<li>A</li>"), strings.Index(index, "<li>B</li>"))
}

func TestFullBuild_BrokenItemDoesNotBlockOthers(t *testing.T) {
	root := fixtureSite(t)
	writeFile(t, filepath.Join(root, "posts", "bad.md"), "+++\ntitle = \"No Date\"\nurl = \"/bad\"\n+++\nbody\n")
	eng := newEngine(t, root)

	report, err := eng.FullBuild(context.Background())
	require.NoError(t, err)
	require.Len(t, report.LoadErrors, 1)
	require.Equal(t, 3, report.Rendered)
	require.Equal(t, "partial", report.Outcome())
}

func TestApply_CyclicLayoutFailsOnlyItsDependents(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "layouts", "post.html"),
		"+++\nparent = \"post\"\n+++\n{{ .Content }}")

	report, err := eng.Apply(context.Background(), []Change{{Path: "layouts/post.html", Op: OpModified}})
	require.NoError(t, err)
	require.Len(t, report.Failed, 2)
	for _, f := range report.Failed {
		require.ErrorIs(t, f.Err, layout.ErrCyclic)
	}
	require.Equal(t, 0, report.Rendered)

	// failed outputs keep their previous content
	require.Contains(t, readOutput(t, root, "2024/01/01/a.html"), "<article>")
}

func TestApply_FullRebuildPicksUpLayoutEdits(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	// a layout edit and a config edit land in the same batch; the
	// escalated full rebuild must still render through the new templates
	writeFile(t, filepath.Join(root, "layouts", "default.html"),
		"<html><body class=\"v2\">{{ .Content }}</body></html>")
	writeFile(t, filepath.Join(root, "site.toml"), "title = \"Renamed\"\n")

	report, err := eng.Apply(context.Background(), []Change{
		{Path: "layouts/default.html", Op: OpModified},
		{Path: "site.toml", Op: OpModified},
	})
	require.NoError(t, err)
	require.True(t, report.Full)
	require.Empty(t, report.Failed)
	require.Contains(t, readOutput(t, root, "index.html"), "class=\"v2\"")
	require.Contains(t, readOutput(t, root, "2024/01/01/a.html"), "class=\"v2\"")
}

func TestApply_BrokenLayoutDoesNotBlockOtherLayoutEdits(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "layouts", "post.html"), "{{ .Content ")
	writeFile(t, filepath.Join(root, "layouts", "index.html"),
		"+++\nparent = \"default\"\n+++\n<ul class=\"v2\">{{ range .Site.Posts }}<li>{{ .Title }}</li>{{ end }}</ul>{{ .Content }}")

	report, err := eng.Apply(context.Background(), []Change{
		{Path: "layouts/post.html", Op: OpModified},
		{Path: "layouts/index.html", Op: OpModified},
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 2) // both posts, scoped to the broken layout
	require.Equal(t, 1, report.Rendered)
	require.Contains(t, readOutput(t, root, "index.html"), "class=\"v2\"")
	// failed outputs keep their previous content
	require.Contains(t, readOutput(t, root, "2024/01/01/a.html"), "<article>")
}

func TestApply_ConfigChangeEscalatesToFullRebuild(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	report, err := eng.Apply(context.Background(), []Change{{Path: "site.toml", Op: OpModified}})
	require.NoError(t, err)
	require.True(t, report.Full)
	require.Equal(t, 3, report.Unchanged)
}

func TestApply_StaticAssetIsCopied(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "static", "css", "site.css"), "body { margin: 0 }")

	report, err := eng.Apply(context.Background(), []Change{{Path: "static/css/site.css", Op: OpAdded}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Assets)
	require.Equal(t, 0, report.Rendered)
	require.Contains(t, readOutput(t, root, "css/site.css"), "margin")

	require.NoError(t, os.Remove(filepath.Join(root, "static", "css", "site.css")))
	report, err = eng.Apply(context.Background(), []Change{{Path: "static/css/site.css", Op: OpRemoved}})
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	_, statErr := os.Stat(filepath.Join(root, "public", "css", "site.css"))
	require.True(t, os.IsNotExist(statErr))
}

func TestSnapshot_IncrementalStateSurvivesRestart(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	restarted := newEngine(t, root)
	require.Equal(t, 3, restarted.Graph().Len())

	report, err := restarted.FullBuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Rendered)
	require.Equal(t, 3, report.Unchanged)
}

func TestFullBuild_StaleOutputsAreSweptAway(t *testing.T) {
	root := fixtureSite(t)
	eng := newEngine(t, root)
	_, err := eng.FullBuild(context.Background())
	require.NoError(t, err)

	// restart after a source disappeared: the snapshot still knows b's output
	require.NoError(t, os.Remove(filepath.Join(root, "posts", "2024-02-01-b.md")))
	restarted := newEngine(t, root)

	report, err := restarted.FullBuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	_, statErr := os.Stat(filepath.Join(root, "public", "2024", "02", "01", "b.html"))
	require.True(t, os.IsNotExist(statErr))
}
