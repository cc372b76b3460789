package doctest

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/shinji-kodama/docrun/internal/model"
)

// headerRegex matches the first line of a doctest failure block:
//
//	File "moduleX.py", line 3, in moduleX
//
// The line number is "?" when the engine could not determine it.
var headerRegex = regexp.MustCompile(`^File "(.+)", line (\d+|\?), in (.+)$`)

// reportIndent is the indentation doctest applies to source, expected, got
// and traceback blocks.
const reportIndent = "    "

type reportSection int

const (
	sectionNone reportSection = iota
	sectionSource
	sectionExpected
	sectionGot
	sectionException
)

// ParseReport extracts failing examples from doctest's failure report
// format. Unrecognized output yields an empty slice; callers still have the
// raw output to show.
//
// A failure block looks like:
//
//	**********************************************************************
//	File "moduleX.py", line 3, in moduleX
//	Failed example:
//	    1+1
//	Expected:
//	    3
//	Got:
//	    2
func ParseReport(output []byte) []model.ExampleFailure {
	var failures []model.ExampleFailure
	var current *model.ExampleFailure
	var buf []string
	section := sectionNone

	flush := func() {
		if current == nil || section == sectionNone {
			buf = nil
			return
		}
		text := strings.TrimRight(strings.Join(buf, "\n"), "\n")
		switch section {
		case sectionSource:
			current.Source = text
		case sectionExpected:
			current.Expected = text
		case sectionGot:
			current.Got = text
		case sectionException:
			current.Exception = text
		}
		buf = nil
		section = sectionNone
	}

	finish := func() {
		flush()
		if current != nil {
			failures = append(failures, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if m := headerRegex.FindStringSubmatch(line); m != nil {
			finish()
			lineNo, _ := strconv.Atoi(m[2])
			current = &model.ExampleFailure{File: m[1], Line: lineNo, Location: m[3]}
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case line == "Failed example:":
			flush()
			section = sectionSource
		case line == "Expected:":
			flush()
			section = sectionExpected
		case line == "Expected nothing":
			flush()
		case line == "Got:", strings.HasPrefix(line, "Differences"):
			flush()
			section = sectionGot
		case line == "Got nothing":
			flush()
		case line == "Exception raised:":
			flush()
			section = sectionException
		case strings.HasPrefix(line, reportIndent):
			if section != sectionNone {
				buf = append(buf, strings.TrimPrefix(line, reportIndent))
			}
		case line == "":
			// doctest leaves blank lines inside indented blocks unindented.
			if section != sectionNone {
				buf = append(buf, "")
			}
		default:
			// A divider or the trailing summary ends the block.
			finish()
		}
	}
	finish()

	return failures
}
