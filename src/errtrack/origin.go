package errtrack

import (
	"reflect"
	"runtime"
	"strings"
)

const originWindow = 5

// Scope names the code a tracker is responsible for: a package and every
// package below it.
type Scope struct {
	path string
}

func NewScope(pkgPath string) *Scope {
	return &Scope{path: strings.TrimSuffix(pkgPath, "/")}
}

// ScopeOf returns the scope of the package that declares fn.
func ScopeOf(fn any) *Scope {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return nil
	}
	return NewScope(packageOf(f.Name()))
}

// CallerScope returns the scope of the package calling it.
func CallerScope() *Scope {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return nil
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return nil
	}
	return NewScope(packageOf(f.Name()))
}

func (s *Scope) Path() string {
	return s.path
}

// Contains reports whether pkg is the scope's package or one of its
// sub-packages.
func (s *Scope) Contains(pkg string) bool {
	return pkg == s.path || strings.HasPrefix(pkg, s.path+"/")
}

func (s *Scope) String() string {
	return s.path
}

// isLibraryPackage reports whether frames of pkg say nothing about who
// raised an error: the standard library, the x/ repositories and the error
// and goroutine plumbing every caller goes through.
func isLibraryPackage(pkg string) bool {
	first, _, _ := strings.Cut(pkg, "/")
	if !strings.Contains(first, ".") && pkg != "main" {
		return true
	}
	switch {
	case strings.HasPrefix(pkg, "golang.org/x/"),
		pkg == "github.com/pkg/errors",
		strings.HasPrefix(pkg, "github.com/sourcegraph/conc"),
		pkg == concurrentPackage:
		return true
	}
	return false
}

// IsSameOrigin reports whether err was raised by code inside scope. The
// first frames that are not library code decide; if there are none the
// cause is consulted instead.
func IsSameOrigin(scope *Scope, err error) bool {
	if scope == nil || err == nil {
		return false
	}
	n := decompose(err)

	first := -1
	for i, f := range n.frames {
		if !isLibraryPackage(f.Package()) {
			first = i
			break
		}
	}
	if first < 0 {
		if n.cause != nil {
			return IsSameOrigin(scope, n.cause)
		}
		return false
	}

	end := min(first+originWindow, len(n.frames))
	for _, f := range n.frames[first:end] {
		pkg := f.Package()
		if isLibraryPackage(pkg) {
			continue
		}
		if !scope.Contains(pkg) {
			return false
		}
	}
	return true
}
