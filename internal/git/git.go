package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

type ChangedFile struct {
	Path         string
	ChangedLines []int
	Deleted      bool
}

// chunkHeader matches "@@ -oldStart,oldLen +newStart,newLen @@"; only the + side is used.
var chunkHeader = regexp.MustCompile(`^@@ \-\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// ChangedFiles runs git diff in dir against baseRef and returns the changed
// files with the line numbers touched in the new version. Paths are relative
// to dir, and changes outside dir are left out.
func ChangedFiles(ctx context.Context, dir, baseRef string) ([]ChangedFile, error) {
	args := []string{"diff", "-U0", "--no-color", "--relative", baseRef}
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s failed: %w", baseRef, err)
	}

	return parseDiff(output)
}

// Paths returns the paths of the changed files that still exist.
func Paths(changes []ChangedFile) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		if !c.Deleted {
			out = append(out, c.Path)
		}
	}
	return out
}

func parseDiff(output []byte) ([]ChangedFile, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var changes []ChangedFile
	var currentFile *ChangedFile

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "diff --git") {
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				if currentFile != nil {
					changes = append(changes, *currentFile)
				}
				// a/path b/path: the b/ side is the new version
				path := strings.TrimPrefix(parts[3], "b/")
				currentFile = &ChangedFile{Path: path, ChangedLines: []int{}}
			}
			continue
		}

		if currentFile == nil {
			continue
		}

		if strings.HasPrefix(line, "+++ /dev/null") {
			currentFile.Deleted = true
			continue
		}

		if strings.HasPrefix(line, "@@") {
			matches := chunkHeader.FindStringSubmatch(line)
			if len(matches) > 1 {
				startLine, err := strconv.Atoi(matches[1])
				if err != nil {
					return nil, fmt.Errorf("bad hunk header %q: %w", line, err)
				}
				count := 1 // omitted length means one line
				if len(matches) > 2 && matches[2] != "" {
					count, err = strconv.Atoi(matches[2])
					if err != nil {
						return nil, fmt.Errorf("bad hunk header %q: %w", line, err)
					}
				}

				// count 0 is a pure deletion: nothing exists at this position in the new file
				for i := 0; i < count; i++ {
					currentFile.ChangedLines = append(currentFile.ChangedLines, startLine+i)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}

	if currentFile != nil {
		changes = append(changes, *currentFile)
	}

	return changes, nil
}
