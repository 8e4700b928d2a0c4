package config

import (
	"fmt"
	"os"
)

func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `# transport: "unix" or "mach"; empty selects the compiled default
transport = ""
codec = "msgpack"
recv_buffer_size = 65536
metrics = true

[sereal]
compression = "none"
threshold = 1024

[log]
level = "info"
`
