package tools

import "os"

// WriteFile writes content to the file at path, creating it if necessary.
func WriteFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
