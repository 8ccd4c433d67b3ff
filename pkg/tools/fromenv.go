package tools

import (
	"os"
	"strings"
)

// ToolsEnv names the environment variable listing the tools available to
// this deployment, comma-separated (e.g. "search,calculator").
const ToolsEnv = "ENSEMBLE_TOOLS"

// FromEnv builds a registry from the ToolsEnv variable. Tools are external
// capabilities the deployment provides; the runtime never loads them, it
// only validates references and advertises names to providers. An unset
// variable yields an empty registry, so workflows referencing tools fail
// validation until the deployment declares what it offers.
func FromEnv() *StaticRegistry {
	reg := NewStaticRegistry()
	for _, name := range strings.Split(os.Getenv(ToolsEnv), ",") {
		if name = strings.TrimSpace(name); name != "" {
			reg.Register(name)
		}
	}
	return reg
}
