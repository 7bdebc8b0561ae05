package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Placeholders of the decompression command template
const (
	PlaceholderArchive = "{archive}"
	PlaceholderDest    = "{dest}"
)

// WorkDirPrefix names the scratch directories an Unarchiver creates in its
// destination. Walker never descends into them.
const WorkDirPrefix = ".unpack-"

// SignatureExtension marks detached signatures shipped next to inner archives
const SignatureExtension = ".sig"

// DefaultCommand unpacks a zip archive quietly, overwriting existing files
const DefaultCommand = "unzip -o -q {archive} -d {dest}"

// Decompressor unpacks one archive into a directory
type Decompressor interface {
	Decompress(ctx context.Context, archive, dir string) error
}

// CommandDecompressor runs an external program built from a command template
type CommandDecompressor struct {
	template []string
	logger   *logrus.Logger
}

// NewCommandDecompressor parses a whitespace-separated command template that
// must reference both {archive} and {dest}
func NewCommandDecompressor(command string, logger *logrus.Logger) (*CommandDecompressor, error) {
	template := strings.Fields(command)
	if len(template) == 0 {
		return nil, fmt.Errorf("decompression command is empty")
	}
	if !strings.Contains(command, PlaceholderArchive) || !strings.Contains(command, PlaceholderDest) {
		return nil, fmt.Errorf("decompression command must contain %s and %s", PlaceholderArchive, PlaceholderDest)
	}

	return &CommandDecompressor{template: template, logger: logger}, nil
}

// Decompress runs the command for archive with dir as destination
func (d *CommandDecompressor) Decompress(ctx context.Context, archive, dir string) error {
	args := make([]string, len(d.template))
	replacer := strings.NewReplacer(PlaceholderArchive, archive, PlaceholderDest, dir)
	for i, part := range d.template {
		args[i] = replacer.Replace(part)
	}

	d.logger.WithField("command", strings.Join(args, " ")).Debug("Running decompression")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &ProcessError{Command: args, Output: string(output), Err: err}
	}
	return nil
}

// Unarchiver turns an archive that wraps one inner archive into a single XML file
type Unarchiver struct {
	decompressor Decompressor
	destDir      string
	logger       *logrus.Logger

	mu      sync.Mutex
	claimed map[string]string
}

// NewUnarchiver creates an unarchiver writing XML files into destDir
func NewUnarchiver(decompressor Decompressor, destDir string, logger *logrus.Logger) *Unarchiver {
	return &Unarchiver{
		decompressor: decompressor,
		destDir:      destDir,
		logger:       logger,
		claimed:      make(map[string]string),
	}
}

// Extract unpacks archivePath, then the inner archive found inside it, and
// moves the resulting XML document to <destDir>/<archive base name>.xml.
// When another archive of this run already took that name, a numeric
// suffix is added instead.
func (u *Unarchiver) Extract(ctx context.Context, archivePath string) (string, error) {
	if err := os.MkdirAll(u.destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	// Unpack inside destDir so the final move is a same-device rename
	work, err := os.MkdirTemp(u.destDir, WorkDirPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	outerDir := filepath.Join(work, "outer")
	innerDir := filepath.Join(work, "inner")
	for _, dir := range []string{outerDir, innerDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create work directory: %w", err)
		}
	}

	if err := u.decompressor.Decompress(ctx, archivePath, outerDir); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", archivePath, err)
	}

	inner, err := u.findInner(outerDir, filepath.Ext(archivePath))
	if err != nil {
		return "", fmt.Errorf("%s: inner archive: %w", archivePath, err)
	}

	if err := u.decompressor.Decompress(ctx, inner, innerDir); err != nil {
		return "", fmt.Errorf("failed to unpack inner archive of %s: %w", archivePath, err)
	}

	xmlFile, err := u.findMember(innerDir, ".xml")
	if err != nil {
		return "", fmt.Errorf("%s: xml document: %w", archivePath, err)
	}

	target := u.claimTarget(archivePath)
	if err := os.Rename(xmlFile, target); err != nil {
		u.releaseTarget(target)
		return "", fmt.Errorf("failed to move xml document: %w", err)
	}

	return target, nil
}

// claimTarget reserves the output path for archivePath
func (u *Unarchiver) claimTarget(archivePath string) string {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	u.mu.Lock()
	defer u.mu.Unlock()

	target := filepath.Join(u.destDir, stem+".xml")
	for n := 2; ; n++ {
		owner, taken := u.claimed[target]
		if !taken {
			break
		}
		u.logger.WithFields(logrus.Fields{
			"archive": archivePath,
			"owner":   owner,
			"target":  target,
		}).Warn("XML name already used in this run")
		target = filepath.Join(u.destDir, stem+"-"+strconv.Itoa(n)+".xml")
	}
	u.claimed[target] = archivePath
	return target
}

func (u *Unarchiver) releaseTarget(target string) {
	u.mu.Lock()
	delete(u.claimed, target)
	u.mu.Unlock()
}

// findInner returns the inner archive below dir. A member with the outer
// archive's extension is preferred; otherwise any file that is neither a
// signature nor an XML document is taken.
func (u *Unarchiver) findInner(dir, ext string) (string, error) {
	inner, err := u.findMember(dir, ext)
	if err == nil || !errors.Is(err, ErrMemberNotFound) {
		return inner, err
	}

	return u.findMatching(dir, "inner archive", func(path string) bool {
		return !MatchExtension(path, SignatureExtension) && !MatchExtension(path, ".xml")
	})
}

// findMember returns the file below dir with extension ext. When several
// match, the first in lexical order wins.
func (u *Unarchiver) findMember(dir, ext string) (string, error) {
	return u.findMatching(dir, "*"+ext+" file", func(path string) bool {
		return MatchExtension(path, ext)
	})
}

func (u *Unarchiver) findMatching(dir, what string, match func(path string) bool) (string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && match(path) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("no %s: %w", what, ErrMemberNotFound)
	}

	sort.Strings(matches)
	if len(matches) > 1 {
		u.logger.WithFields(logrus.Fields{
			"dir":     dir,
			"matches": len(matches),
			"chosen":  matches[0],
		}).Warn("Several candidate members found")
	}
	return matches[0], nil
}
