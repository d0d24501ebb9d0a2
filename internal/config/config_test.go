package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func siteRoot(t *testing.T, siteTOML string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "layouts"), 0o750))
	if siteTOML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "site.toml"), []byte(siteTOML), 0o644))
	}
	return root
}

func TestLoad_MissingFileUsesConventions(t *testing.T) {
	root := siteRoot(t, "")

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "posts"), cfg.PostsDir())
	require.Equal(t, filepath.Join(root, "pages"), cfg.PagesDir())
	require.Equal(t, filepath.Join(root, "layouts"), cfg.LayoutsDir())
	require.Equal(t, filepath.Join(root, "static"), cfg.StaticDir())
	require.Equal(t, filepath.Join(root, "public"), cfg.OutputDir())
	require.Greater(t, cfg.Workers, 0)
}

func TestLoad_ReadsSiteTOML(t *testing.T) {
	root := siteRoot(t, `
title = "My Site"
base_url = "https://example.com"
workers = 2

[paths]
output = "dist"

[vars]
motto = "hello"

[deploy]
strategy = "s3_and_cloudfront"
bucket = "my-bucket"
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "My Site", cfg.Title)
	require.Equal(t, "https://example.com", cfg.BaseURL)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, filepath.Join(root, "dist"), cfg.OutputDir())
	require.Equal(t, "hello", cfg.Vars["motto"])
	require.NotNil(t, cfg.Deploy)
	require.Equal(t, "s3_and_cloudfront", cfg.Deploy.Strategy)
	require.Equal(t, "my-bucket", cfg.Deploy.Bucket)
}

func TestLoad_MalformedTOML(t *testing.T) {
	root := siteRoot(t, "title = \n")

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}

func TestValidate_MissingLayoutRoot(t *testing.T) {
	root := t.TempDir()

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "layout root")
}

func TestValidate_RejectsEscapingPaths(t *testing.T) {
	root := siteRoot(t, "[paths]\nposts = \"../elsewhere\"\n")

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "relative path inside the site root")
}

func TestValidate_RejectsAbsolutePaths(t *testing.T) {
	root := siteRoot(t, "[paths]\noutput = \"/tmp/out\"\n")

	_, err := Load(root)
	require.Error(t, err)
}

func TestValidate_OutputMustNotOverlapContent(t *testing.T) {
	root := siteRoot(t, "[paths]\noutput = \"posts/out\"\n")

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "overlaps")
}

func TestValidate_DeployNeedsStrategy(t *testing.T) {
	root := siteRoot(t, "[deploy]\nbucket = \"b\"\n")

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "deploy.strategy")
}
