package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nexconsult/egrn-tools/internal/archive"
	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/realty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUnpacker writes a prepared XML document for each archive
type fakeUnpacker struct {
	mu      sync.Mutex
	destDir string
	docs    map[string]string
	fail    map[string]bool
	seen    []string
}

func (f *fakeUnpacker) Extract(_ context.Context, archivePath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))

	f.mu.Lock()
	f.seen = append(f.seen, base)
	f.mu.Unlock()

	if f.fail[base] {
		return "", &archive.ProcessError{Command: []string{"unzip", archivePath}, Err: errors.New("exit status 9")}
	}

	target := filepath.Join(f.destDir, base+".xml")
	if err := os.WriteFile(target, []byte(f.docs[base]), 0o644); err != nil {
		return "", err
	}
	return target, nil
}

func flatDoc(number string) string {
	return fmt.Sprintf(`<KPOKS><Realty><Flat CadastralNumber="77:01:%s"><Area>40</Area>`+
		`<PositionInObject><Levels><Level Number="2"><Position NumberOnPlan="%s"/></Level></Levels></PositionInObject>`+
		`</Flat></Realty></KPOKS>`, number, number)
}

func setupArchives(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for i, name := range names {
		dir := root
		if i%2 == 1 {
			dir = filepath.Join(root, "nested")
		}
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("zip"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("skip"), 0o644))
	return root
}

func readTable(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPipeline_OneFailureStillWritesOthers(t *testing.T) {
	root := setupArchives(t, "a.zip", "b.zip", "c.ZIP", "d.zip", "e.zip")
	dest := t.TempDir()

	unpacker := &fakeUnpacker{
		destDir: dest,
		docs: map[string]string{
			"a": flatDoc("10"),
			"b": flatDoc("2"),
			"c": flatDoc("abc"),
			"e": flatDoc("1"),
		},
		fail: map[string]bool{"d": true},
	}

	p := NewPipeline(archive.NewWalker(logger.Discard()), unpacker, realty.NewExtractor(logger.Discard()), Options{
		ArchivesDir: root,
		DestDir:     dest,
		Extension:   ".zip",
		Concurrency: 3,
	}, logger.Discard())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Matched)
	assert.Equal(t, 4, summary.Extracted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, filepath.Join(dest, ResultFileName), summary.Output)
	assert.Len(t, unpacker.seen, 5)

	rows := readTable(t, summary.Output)
	require.Len(t, rows, 5)
	assert.Equal(t, models.RealtyColumns, rows[0])

	var order []string
	for _, row := range rows[1:] {
		order = append(order, row[1])
	}
	assert.Equal(t, []string{"1", "2", "10", "abc"}, order)
}

func TestPipeline_ExtractionFailureSkipsDocument(t *testing.T) {
	root := setupArchives(t, "a.zip", "b.zip")
	dest := t.TempDir()

	unpacker := &fakeUnpacker{
		destDir: dest,
		docs: map[string]string{
			"a": flatDoc("5"),
			"b": "<Unrelated/>",
		},
	}

	p := NewPipeline(archive.NewWalker(logger.Discard()), unpacker, realty.NewExtractor(logger.Discard()), Options{
		ArchivesDir: root,
		DestDir:     dest,
		Extension:   "zip",
		Concurrency: 2,
	}, logger.Discard())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, readTable(t, summary.Output), 2)
}

func TestPipeline_NoArchives(t *testing.T) {
	dest := t.TempDir()

	p := NewPipeline(archive.NewWalker(logger.Discard()), &fakeUnpacker{destDir: dest}, realty.NewExtractor(logger.Discard()), Options{
		ArchivesDir: t.TempDir(),
		DestDir:     dest,
		Extension:   ".zip",
	}, logger.Discard())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Matched)
	assert.Equal(t, [][]string{models.RealtyColumns}, readTable(t, summary.Output))
}

func TestPipeline_MissingArchivesDir(t *testing.T) {
	dest := t.TempDir()

	p := NewPipeline(archive.NewWalker(logger.Discard()), &fakeUnpacker{destDir: dest}, realty.NewExtractor(logger.Discard()), Options{
		ArchivesDir: filepath.Join(t.TempDir(), "absent"),
		DestDir:     dest,
		Extension:   ".zip",
	}, logger.Discard())

	_, err := p.Run(context.Background())
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dest, ResultFileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestResultTable_SortedDoesNotMutate(t *testing.T) {
	results := &ResultTable{}
	results.Append(models.RealtyRecord{Number: "3"})
	results.Append(models.RealtyRecord{Number: "1"})

	assert.Equal(t, "1", results.Sorted()[0].Number)
	assert.Equal(t, 2, results.Len())
	assert.Equal(t, "3", results.records[0].Number)
}
