// Package fakedoctest provides a tiny stand-in doctest engine for tests.
//
// The engine is a POSIX sh script that understands one kind of example:
// an integer arithmetic expression after ">>> " followed by its expected
// value on the next line. Failures are printed in the standard doctest
// report format and the script exits 1, so the runner's report parsing and
// exit-status handling are exercised without a Python interpreter.
package fakedoctest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const script = `#!/bin/sh
status=0
for f in "$@"; do
  if [ ! -f "$f" ]; then
    echo "cannot open $f" >&2
    status=2
    continue
  fi
  n=0
  expr=""
  exprline=0
  while IFS= read -r line || [ -n "$line" ]; do
    n=$((n+1))
    case "$line" in
      *'>>> '*)
        expr=${line#*'>>> '}
        exprline=$n
        continue
        ;;
    esac
    if [ -n "$expr" ]; then
      want=$(echo "$line" | sed 's/^ *//')
      got=$(($expr))
      if [ "$got" != "$want" ]; then
        echo "**********************************************************************"
        echo "File \"$f\", line $exprline, in ${f%.py}"
        echo "Failed example:"
        echo "    $expr"
        echo "Expected:"
        echo "    $want"
        echo "Got:"
        echo "    $got"
        status=1
      fi
      expr=""
    fi
  done < "$f"
done
if [ -n "$FAKEDOCTEST_LOG" ]; then
  echo "$(pwd)|$*" >> "$FAKEDOCTEST_LOG"
fi
exit $status
`

// Command writes the engine script into a temporary directory and returns
// the argv prefix that runs it.
func Command(t *testing.T) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakedoctest.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return []string{"sh", path}
}

// WriteModule writes a module file under dir containing one example:
// ">>> expr" expecting want.
func WriteModule(t *testing.T, dir, name, expr, want string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := fmt.Sprintf("\"\"\"\n>>> %s\n%s\n\"\"\"\n", expr, want)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
