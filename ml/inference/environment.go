package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnvVar names the environment variable consulted for the onnxruntime library.
const SharedLibraryEnvVar = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	envMu    sync.Mutex
	envRefs  int
	envOwned bool
)

// SharedLibraryPath picks the onnxruntime shared library to load. An explicit path wins, then
// the environment variable, then the platform's default library name on the loader's path.
func SharedLibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(SharedLibraryEnvVar); fromEnv != "" {
		return fromEnv
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// InitEnvironment loads the onnxruntime library and initializes its environment. Calls are
// reference counted; every successful call must be paired with ReleaseEnvironment. If the
// environment was initialized by someone else it is used as is and never destroyed here.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		ort.SetSharedLibraryPath(SharedLibraryPath(libPath))
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrapf(err, "failed to initialize onnxruntime from %q", SharedLibraryPath(libPath))
		}
		envOwned = true
	}
	envRefs++
	return nil
}

// ReleaseEnvironment drops one reference taken by InitEnvironment, destroying the environment
// when the last reference is gone.
func ReleaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return errors.New("onnxruntime environment released more times than it was initialized")
	}
	envRefs--
	if envRefs > 0 || !envOwned {
		return nil
	}
	envOwned = false
	return errors.Wrap(ort.DestroyEnvironment(), "failed to destroy onnxruntime environment")
}

// RuntimeVersion returns the version string reported by the loaded onnxruntime library.
func RuntimeVersion() string {
	if !ort.IsInitialized() {
		return ""
	}
	return ort.GetVersion()
}
