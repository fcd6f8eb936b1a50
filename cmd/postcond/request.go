// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/postcond/postcond/internal/cueutil"
	"github.com/postcond/postcond/internal/orchestrator"
	"github.com/postcond/postcond/internal/runner"
)

// stdinPath selects standard input for --args and --file.
const stdinPath = "-"

//go:embed request_schema.cue
var requestSchema []byte

var (
	// ErrNoSnippet is returned when neither an args file nor --file supplied
	// snippet text.
	ErrNoSnippet = errors.New("no postcondition snippet given (use --file or an args file)")
	// ErrUnsupportedArgsFormat is returned for an args file with an unknown extension.
	ErrUnsupportedArgsFormat = errors.New("unsupported args file format")
	// ErrConflictingSnippet is returned when both postcondition and
	// postcondition_class are set to different texts.
	ErrConflictingSnippet = errors.New("postcondition and postcondition_class disagree")
)

type (
	// requestArgs is the on-disk request. The _ansible_* keys are what an
	// Ansible module receives; the plain keys take precedence.
	requestArgs struct {
		Postcondition      string   `json:"postcondition"              toml:"postcondition"`
		PostconditionClass string   `json:"postcondition_class"        toml:"postcondition_class"`
		Class              string   `json:"class"                      toml:"class"`
		Runner             string   `json:"runner"                     toml:"runner"`
		CheckMode          *bool    `json:"check_mode"                 toml:"check_mode"`
		AnsibleCheckMode   *bool    `json:"_ansible_check_mode"        toml:"_ansible_check_mode"`
		KeepRemoteFiles    *bool    `json:"keep_remote_files"          toml:"keep_remote_files"`
		AnsibleKeepFiles   *bool    `json:"_ansible_keep_remote_files" toml:"_ansible_keep_remote_files"`
		Payloads           []string `json:"payloads"                   toml:"payloads"`
	}

	// requestFlags holds the run command's flags. The *Set fields record
	// whether the flag was given explicitly, so flags override args files.
	requestFlags struct {
		argsFile        string
		snippetFile     string
		class           string
		runner          string
		checkMode       bool
		checkModeSet    bool
		keepRemoteFiles bool
		keepSet         bool
		payloads        []string
	}
)

// parseArgs decodes an args file by extension: .json, .toml or .cue.
// Standard input is JSON.
func parseArgs(path string, data []byte) (requestArgs, error) {
	var args requestArgs

	ext := strings.ToLower(filepath.Ext(path))
	if path == stdinPath {
		ext = ".json"
	}

	switch ext {
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&args); err != nil {
			return requestArgs{}, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &args); err != nil {
			return requestArgs{}, fmt.Errorf("%s: %w", path, err)
		}
	case ".cue":
		result, err := cueutil.ParseAndDecode[requestArgs](requestSchema, data, "#Request", cueutil.WithFilename(path))
		if err != nil {
			return requestArgs{}, err
		}
		args = *result.Value
	default:
		return requestArgs{}, fmt.Errorf("%w: %s (want .json, .toml or .cue)", ErrUnsupportedArgsFormat, path)
	}

	return args, nil
}

// snippet returns the snippet text, reconciling the two key spellings.
func (a requestArgs) snippet() (string, error) {
	switch {
	case a.Postcondition == "":
		return a.PostconditionClass, nil
	case a.PostconditionClass == "" || a.PostconditionClass == a.Postcondition:
		return a.Postcondition, nil
	default:
		return "", ErrConflictingSnippet
	}
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

// buildRequest merges the args file (if any) with flags. Explicit flags win.
func buildRequest(f requestFlags, stdin io.Reader) (orchestrator.Request, error) {
	var args requestArgs
	if f.argsFile != "" {
		data, err := readInput(f.argsFile, stdin)
		if err != nil {
			return orchestrator.Request{}, err
		}
		if args, err = parseArgs(f.argsFile, data); err != nil {
			return orchestrator.Request{}, err
		}
	}

	snippet, err := args.snippet()
	if err != nil {
		return orchestrator.Request{}, err
	}
	if f.snippetFile != "" {
		data, err := readInput(f.snippetFile, stdin)
		if err != nil {
			return orchestrator.Request{}, err
		}
		snippet = string(data)
	}
	if strings.TrimSpace(snippet) == "" {
		return orchestrator.Request{}, ErrNoSnippet
	}

	req := orchestrator.Request{
		Snippet:         snippet,
		ClassName:       args.Class,
		Runner:          runner.Kind(args.Runner),
		CheckMode:       firstBool(args.CheckMode, args.AnsibleCheckMode),
		KeepRemoteFiles: firstBool(args.KeepRemoteFiles, args.AnsibleKeepFiles),
		Payloads:        append(args.Payloads, f.payloads...),
	}
	if f.class != "" {
		req.ClassName = f.class
	}
	if f.runner != "" {
		req.Runner = runner.Kind(f.runner)
	}
	if f.checkModeSet {
		req.CheckMode = f.checkMode
	}
	if f.keepSet {
		req.KeepRemoteFiles = f.keepRemoteFiles
	}
	return req, nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == stdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
