// SPDX-License-Identifier: MPL-2.0

// Package config loads postcond configuration with Viper, using CUE as the
// file format.
//
// Values come from, in increasing precedence: built-in defaults, the config
// file ($XDG_CONFIG_HOME/postcond/config.cue or --config) validated against
// the embedded config_schema.cue, and POSTCOND_* environment variables
// (POSTCOND_PYTHON_INTERPRETER, POSTCOND_KEEP_REMOTE_FILES, ...).
// ANSIBLE_KEEP_REMOTE_FILES is honored as an alias for retention.
package config
