package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://baas.test"

const testConfig = `
app:
  app_key: kid
  master_secret: master
  base_url: https://baas.test
storage:
  precedence: [memory]
logging:
  level: error
  console:
    enabled: true
    level: error
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command with a generated config and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yml", testConfig)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

const books = `[
  {"_id": "1", "title": "Dune", "genre": "scifi", "pages": 412},
  {"_id": "2", "title": "Emma", "genre": "classic", "pages": 474},
  {"_id": "3", "title": "Solaris", "genre": "scifi", "pages": 204},
  {"_id": "4", "title": "Ulysses", "genre": "classic"}
]`

func decode(t *testing.T, s string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestQueryCommand(t *testing.T) {
	input := writeFile(t, t.TempDir(), "books.json", books)

	out, err := run(t, "", "query", "--input", input,
		"--filter", `{"genre":"scifi"}`, "--sort", "-pages", "--fields", "title")
	require.NoError(t, err)

	docs := decode(t, out)
	require.Len(t, docs, 2)
	assert.Equal(t, "Dune", docs[0]["title"])
	assert.Equal(t, "Solaris", docs[1]["title"])
	assert.NotContains(t, docs[0], "pages")
	assert.Equal(t, "1", docs[0]["_id"])
}

func TestQueryCommand_StdinAndPaging(t *testing.T) {
	out, err := run(t, books, "query", "--sort", "title", "--skip", "1", "--limit", "2")
	require.NoError(t, err)

	docs := decode(t, out)
	require.Len(t, docs, 2)
	assert.Equal(t, "Emma", docs[0]["title"])
	assert.Equal(t, "Solaris", docs[1]["title"])

	out, err = run(t, books, "query", "--limit", "0")
	require.NoError(t, err)
	assert.Empty(t, decode(t, out))
}

func TestQueryCommand_Errors(t *testing.T) {
	_, err := run(t, books, "query", "--filter", `{"genre":`)
	assert.ErrorContains(t, err, "invalid filter")

	_, err = run(t, books, "query", "--filter", `{"$where":"1"}`)
	assert.Error(t, err)

	_, err = run(t, "not json", "query")
	assert.Error(t, err)

	_, err = run(t, "", "query", "--input", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAggregateCommand(t *testing.T) {
	out, err := run(t, books, "aggregate", "--kind", "count", "--by", "genre")
	require.NoError(t, err)
	groups := decode(t, out)
	require.Len(t, groups, 2)
	assert.Equal(t, "scifi", groups[0]["genre"])
	assert.EqualValues(t, 2, groups[0]["count"])

	out, err = run(t, books, "aggregate", "--kind", "sum", "--field", "pages", "--filter", `{"genre":"scifi"}`)
	require.NoError(t, err)
	groups = decode(t, out)
	require.Len(t, groups, 1)
	assert.EqualValues(t, 616, groups[0]["sum"])

	_, err = run(t, books, "aggregate", "--kind", "median")
	assert.Error(t, err)
}

func TestUploadCommand(t *testing.T) {
	defer gock.Off()
	const uploadURL = "https://storage.test/upload/f1"

	gock.New(testBaseURL).
		Post("/blob/kid").
		MatchHeader("X-Kinvey-Content-Type", "^text/plain").
		Reply(201).
		JSON(map[string]interface{}{
			"_id":             "f1",
			"_filename":       "notes.txt",
			"_uploadURL":      uploadURL,
			"_requiredHeaders": map[string]interface{}{},
		})
	gock.New("https://storage.test").
		Put("/upload/f1").
		MatchHeader("Content-Range", `^bytes \*/5$`).
		Reply(308)
	gock.New("https://storage.test").
		Put("/upload/f1").
		MatchHeader("Content-Range", "^bytes 0-4/5$").
		Reply(200)

	file := writeFile(t, t.TempDir(), "notes.txt", "hello")
	out, err := run(t, "", "upload", "--file", file)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "f1", doc["_id"])
	assert.NotContains(t, doc, "_uploadURL")
	assert.NotContains(t, doc, "_data")
	assert.True(t, gock.IsDone())
}

func TestUploadCommand_RequiresFile(t *testing.T) {
	_, err := run(t, "", "upload")
	assert.Error(t, err)
}

func TestPullCommand(t *testing.T) {
	defer gock.Off()
	gock.New(testBaseURL).
		Get("/appdata/kid/books").
		MatchHeader("Authorization", "^Basic ").
		Reply(200).
		JSON([]map[string]interface{}{{"_id": "1", "title": "Dune"}, {"_id": "2", "title": "Emma"}})

	out, err := run(t, "", "pull", "--collection", "books", "--clear")
	require.NoError(t, err)
	assert.Equal(t, "pulled 2 documents into kid.books\n", out)
	assert.True(t, gock.IsDone())
}

func TestLogLevelOverride(t *testing.T) {
	_, err := run(t, books, "--log-level", "verbose", "query")
	assert.Error(t, err)

	_, err = run(t, books, "--log-level", "debug", "query")
	assert.NoError(t, err)
}

func TestAggregateCommand_NoNumericValues(t *testing.T) {
	out, err := run(t, `[{"_id":"1","title":"x"}]`, "aggregate", "--kind", "min", "--field", "price")
	require.NoError(t, err)
	groups := decode(t, out)
	require.Len(t, groups, 1)
	assert.Contains(t, groups[0], "min")
	assert.Nil(t, groups[0]["min"])

	out, err = run(t, "[]", "aggregate", "--kind", "max", "--field", "price")
	require.NoError(t, err)
	assert.Nil(t, decode(t, out)[0]["max"])
}
