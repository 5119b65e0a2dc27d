//go:build cgo && (linux || darwin)

/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package opencl

// This file handles loading the OpenCL dynamic library.
//
// Modified version of https://github.com/coreos/pkg/blob/main/dlopen/dlopen.go, licenced with Apache 2.0 license
// https://github.com/coreos/pkg/blob/main/LICENSE

// #cgo linux LDFLAGS: -ldl
/*
#include <stdlib.h>
#include <dlfcn.h>
*/
import "C"
import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	reLdConfInclude = regexp.MustCompile(`^\s*include\s*(.*)$`)
	reLdConfComment = regexp.MustCompile(`^\s*#`)
	reLdConfPath    = regexp.MustCompile(`^\s*(.+?)\s*$`)
)

// libraryPaths returns the directories where to search for the library: the absolute entries of
// LD_LIBRARY_PATH (and DYLD_LIBRARY_PATH on darwin), followed by the ones configured in ldConf, if it exists.
func libraryPaths(ldConf string) []string {
	paths := make(map[string]bool)
	var ordered []string
	add := func(p string) {
		if !paths[p] {
			paths[p] = true
			ordered = append(ordered, p)
		}
	}
	for _, varName := range []string{"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH"} {
		for _, ldPath := range strings.Split(os.Getenv(varName), string(os.PathListSeparator)) {
			if ldPath == "" || !path.IsAbs(ldPath) {
				// No empty or relative paths.
				continue
			}
			add(ldPath)
		}
	}
	if _, err := os.Stat(ldConf); err == nil {
		loadLibraryPaths(ldConf, add)
	}
	klog.V(1).Infof("opencl: library paths: %v", ordered)
	return ordered
}

// loadLibraryPaths parses an ld.so.conf file, following its include directives.
func loadLibraryPaths(filePath string, add func(string)) {
	klog.V(2).Infof("Loading paths for libraries from %q", filePath)
	file, err := os.Open(filePath)
	if err != nil {
		klog.Errorf("Failed to load paths for libraries from %q: %v", filePath, err)
		return
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if parts := reLdConfInclude.FindStringSubmatch(line); len(parts) > 0 {
			pattern := parts[1]
			if !path.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(filePath), pattern)
			}
			files, err := filepath.Glob(pattern)
			if err != nil {
				klog.Errorf("Failed to load paths for libraries while expanding include entry %q: %v", parts[1], err)
				continue
			}
			for _, includeFile := range files {
				loadLibraryPaths(includeFile, add)
			}

		} else if reLdConfComment.MatchString(line) {
			continue

		} else if parts := reLdConfPath.FindStringSubmatch(line); len(parts) > 0 {
			add(parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Errorf("Error while loading paths for libraries from %q: %v", filePath, err)
	}
}

// candidates returns the paths to try, in order, for the given library names.
// Absolute names are tried as is, and relative ones are tried in each of the paths, and finally by
// themselves (so dlopen applies its own search rules).
func candidates(names, paths []string) []string {
	var result []string
	for _, name := range names {
		if path.IsAbs(name) {
			result = append(result, name)
			continue
		}
		for _, prefix := range paths {
			result = append(result, path.Join(prefix, name))
		}
		result = append(result, name)
	}
	return slices.Compact(result)
}

// libHandle represents an open handle to a library (.so)
type libHandle struct {
	Handle unsafe.Pointer
	Name   string
}

// loadLibrary opens the first of the candidates that can be loaded and that defines all the symbols in
// required. The handle is never closed: the library stays loaded until the process exits.
func loadLibrary(candidates []string, required []string) (*libHandle, error) {
	for _, candidateName := range candidates {
		nameC := C.CString(candidateName)
		klog.V(2).Infof("trying to load library %s", candidateName)
		handle := C.dlopen(nameC, C.RTLD_LAZY)
		C.free(unsafe.Pointer(nameC))
		if handle == nil {
			if info, err := os.Stat(candidateName); err == nil && !info.IsDir() {
				klog.Warningf("Failed to dynamically load OpenCL from %q: check with `ldd %s`, maybe there are missing required libraries.", candidateName, candidateName)
			}
			continue
		}
		h := &libHandle{Handle: handle, Name: candidateName}
		var missing []string
		for _, symbol := range required {
			if _, err := h.GetSymbolPointer(symbol); err != nil {
				missing = append(missing, symbol)
			}
		}
		if len(missing) > 0 {
			klog.Warningf("Tried to load %q, but it is missing symbols %q, skipping", candidateName, missing)
			if err := h.Close(); err != nil {
				klog.Warningf("Failed to close dynamic library %q: %v", candidateName, err)
			}
			continue
		}
		klog.V(1).Infof("loaded library %s", candidateName)
		return h, nil
	}
	return nil, errors.Errorf("failed to load OpenCL library, tried %q on %s", candidates, runtime.GOOS)
}

// GetSymbolPointer takes a symbol name and returns a pointer to the symbol.
func (l *libHandle) GetSymbolPointer(symbol string) (unsafe.Pointer, error) {
	sym := C.CString(symbol)
	defer C.free(unsafe.Pointer(sym))

	C.dlerror()
	p := C.dlsym(l.Handle, sym)
	e := C.dlerror()
	if e != nil {
		return nil, errors.Errorf("error resolving symbol %q: %v", symbol, errors.New(C.GoString(e)))
	}
	if p == nil {
		return nil, errors.Errorf("symbol %q resolved to nil", symbol)
	}
	return p, nil
}

// Close closes a libHandle.
func (l *libHandle) Close() error {
	C.dlerror()
	C.dlclose(l.Handle)
	e := C.dlerror()
	if e != nil {
		return errors.Errorf("error closing %v: %v", l.Name, errors.New(C.GoString(e)))
	}
	return nil
}
